package planner

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-planner/internal/platform/cache"
)

// PlanCache stores computed schedule previews. Implementations must treat
// every failure as a miss; caching never fails a planning run.
type PlanCache interface {
	// CalendarKey resolves the key for one preview. A run resolves it once,
	// before reading its snapshot, and uses it for both lookup and store, so
	// an invalidation during the run orphans what the run writes. False means
	// the preview is not cacheable.
	CalendarKey(ctx context.Context, studentID, courseID string, opts Options) (string, bool)
	GetCalendar(ctx context.Context, key string) (Calendar, bool)
	PutCalendar(ctx context.Context, key string, cal Calendar)
	// InvalidateStudent drops every cached plan of one student.
	InvalidateStudent(ctx context.Context, studentID string)
	// InvalidateAll drops every cached plan, used when the curriculum changes.
	InvalidateAll(ctx context.Context)
}

// NopPlanCache never caches.
type NopPlanCache struct{}

func (NopPlanCache) CalendarKey(context.Context, string, string, Options) (string, bool) {
	return "", false
}
func (NopPlanCache) GetCalendar(context.Context, string) (Calendar, bool) { return Calendar{}, false }
func (NopPlanCache) PutCalendar(context.Context, string, Calendar)        {}
func (NopPlanCache) InvalidateStudent(context.Context, string)            {}
func (NopPlanCache) InvalidateAll(context.Context)                        {}

// RedisPlanCache keeps previews in Redis. Keys embed a per-student and a
// curriculum-wide generation counter; bumping a counter orphans the old keys,
// which then age out on their TTL.
type RedisPlanCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisPlanCache wraps c. A non-positive ttl defaults to five minutes.
func NewRedisPlanCache(c *cache.Cache, ttl time.Duration) *RedisPlanCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisPlanCache{cache: c, ttl: ttl}
}

// CalendarKey embeds the current student and curriculum generations.
func (r *RedisPlanCache) CalendarKey(ctx context.Context, studentID, courseID string, opts Options) (string, bool) {
	studentGen, err := r.cache.Generation(ctx, r.cache.Key("gen", "student", studentID))
	if err != nil {
		slog.Warn("plan cache key failed", "student_id", studentID, "error", err)
		return "", false
	}
	curriculumGen, err := r.cache.Generation(ctx, r.cache.Key("gen", "curriculum"))
	if err != nil {
		slog.Warn("plan cache key failed", "student_id", studentID, "error", err)
		return "", false
	}
	return r.cache.Key("calendar", studentID, courseID,
		strconv.FormatInt(studentGen, 10),
		strconv.FormatInt(curriculumGen, 10),
		optionsFingerprint(opts),
	), true
}

func (r *RedisPlanCache) GetCalendar(ctx context.Context, key string) (Calendar, bool) {
	var cal Calendar
	if err := r.cache.GetJSON(ctx, key, &cal); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("plan cache read failed", "key", key, "error", err)
		}
		return Calendar{}, false
	}
	return cal, true
}

func (r *RedisPlanCache) PutCalendar(ctx context.Context, key string, cal Calendar) {
	if err := r.cache.SetJSON(ctx, key, cal, r.ttl); err != nil {
		slog.Warn("plan cache write failed", "key", key, "error", err)
	}
}

func (r *RedisPlanCache) InvalidateStudent(ctx context.Context, studentID string) {
	if _, err := r.cache.Bump(ctx, r.cache.Key("gen", "student", studentID)); err != nil {
		slog.Warn("plan cache invalidation failed", "student_id", studentID, "error", err)
	}
}

func (r *RedisPlanCache) InvalidateAll(ctx context.Context) {
	if _, err := r.cache.Bump(ctx, r.cache.Key("gen", "curriculum")); err != nil {
		slog.Warn("plan cache invalidation failed", "scope", "curriculum", "error", err)
	}
}

// optionsFingerprint is a short stable hash of resolved options. Weekday
// order does not change the fingerprint.
func optionsFingerprint(opts Options) string {
	days := slices.Clone(opts.StudyDays)
	slices.Sort(days)

	h, _ := blake2b.New(16, nil)
	fmt.Fprintf(h, "days=%v;hours=%g;start=%s", days, opts.HoursPerDay, opts.StartDate)
	return hex.EncodeToString(h.Sum(nil))
}
