package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Message:   message,
		Timestamp: s.clock.Now().UTC(),
	})
}

// badRequest marks input that could not be parsed at all.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

// writeServiceError maps an error from a service call to a status code.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var malformed badRequest
	switch {
	case errors.As(err, &malformed):
		s.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnknownDistrict), errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeJSON reads one JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest{errors.New("request body is empty")}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &domain.ValidationError{Field: typeErr.Field, Reason: "must be " + typeErr.Type.String()}
		}
		return badRequest{fmt.Errorf("decode request body: %w", err)}
	}
	return nil
}

// query wraps URL query access with typed parsers that collect the first
// parse failure.
type query struct {
	values map[string][]string
	err    error
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) param(name string) string {
	if v := q.values[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q *query) intParam(name string, fallback int) int {
	raw := q.param(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && q.err == nil {
		q.err = badRequest{fmt.Errorf("query parameter %s: not an integer", name)}
	}
	return v
}

func (q *query) floatParam(name string) *float64 {
	raw := q.param(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if q.err == nil {
			q.err = badRequest{fmt.Errorf("query parameter %s: not a number", name)}
		}
		return nil
	}
	return &v
}

// requiredFloat records a validation error when name is missing.
func (q *query) requiredFloat(name string) float64 {
	v := q.floatParam(name)
	if v == nil {
		if q.err == nil {
			q.err = &domain.ValidationError{Field: name, Reason: "is required"}
		}
		return 0
	}
	return *v
}

func (q *query) timeParam(name string) time.Time {
	raw := q.param(name)
	if raw == "" {
		if q.err == nil {
			q.err = &domain.ValidationError{Field: name, Reason: "is required"}
		}
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	if q.err == nil {
		q.err = badRequest{fmt.Errorf("query parameter %s: not an RFC 3339 timestamp or date", name)}
	}
	return time.Time{}
}
