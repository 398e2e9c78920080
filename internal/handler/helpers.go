package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptelt/promptelt/internal/assistant"
	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/snapshot"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeEnvelope writes a broker envelope, translating a failure into the
// matching HTTP status. The body is the envelope either way.
func writeEnvelope(w http.ResponseWriter, resp model.Response) {
	writeJSON(w, envelopeStatus(resp), resp)
}

func envelopeStatus(resp model.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	err := resp.Err
	switch {
	case errors.Is(err, broker.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, snapshot.ErrSnapshotNotFound), errors.Is(err, config.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, broker.ErrAssistantUnavailable), errors.Is(err, broker.ErrArchiveDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrNoAPIKey):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// writeStoreError maps config store failures to 404 or 500.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if isNotFound(err) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func isNotFound(err error) bool {
	return errors.Is(err, config.ErrNotFound)
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// pathInt64 parses a numeric URL parameter.
func pathInt64(r *http.Request, key string) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryInt64 is queryInt for database ids.
func queryInt64(r *http.Request, key string) int64 {
	n, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// queryTime parses an RFC 3339 timestamp; missing means the zero time.
func queryTime(r *http.Request, key string) (time.Time, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, val)
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
