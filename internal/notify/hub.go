// Package notify streams planner events to connected WebSocket clients.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-planner/internal/planner"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

// Hub fans planner events out to each student's open sockets. It implements
// planner.EventLogger.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	// OriginPatterns is passed to websocket.Accept. Empty means same origin.
	OriginPatterns []string
}

type subscriber struct {
	events chan planner.Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*subscriber]struct{})}
}

// LogEvent delivers the event to every subscriber of its student. Slow
// subscribers whose buffer is full miss the event.
func (h *Hub) LogEvent(event planner.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[event.StudentID] {
		select {
		case sub.events <- event:
		default:
			slog.Warn("dropping event for slow subscriber",
				"student_id", event.StudentID,
				"type", event.EventType,
			)
		}
	}
	return nil
}

// Subscribe registers a listener for studentID. The returned func removes it.
func (h *Hub) Subscribe(studentID string) (<-chan planner.Event, func()) {
	sub := &subscriber{events: make(chan planner.Event, sendBuffer)}

	h.mu.Lock()
	if h.subscribers[studentID] == nil {
		h.subscribers[studentID] = make(map[*subscriber]struct{})
	}
	h.subscribers[studentID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[studentID], sub)
			if len(h.subscribers[studentID]) == 0 {
				delete(h.subscribers, studentID)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers counts the open listeners of studentID.
func (h *Hub) Subscribers(studentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[studentID])
}

// ServeStudent upgrades the request and streams studentID's events as JSON
// messages until the client goes away.
func (h *Hub) ServeStudent(w http.ResponseWriter, r *http.Request, studentID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "student_id", studentID, "error", err)
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := h.Subscribe(studentID)
	defer unsubscribe()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer closes.
	ctx := conn.CloseRead(r.Context())

	slog.Debug("event stream opened", "student_id", studentID)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("event stream closed", "student_id", studentID)
			return
		case event := <-events:
			if err := write(ctx, conn, event); err != nil {
				slog.Debug("event stream write failed", "student_id", studentID, "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, event planner.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}
