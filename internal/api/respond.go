package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-planner/internal/planner"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Unexpected failures get a generic
// message.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, errBadRequest), planner.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeBody validates the request body against schema and decodes it into
// dest. An empty body counts as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, schema gojsonschema.JSONLoader, dest any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", errBadRequest, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", errBadRequest, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
