package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error onto a status code. Only unexpected
// errors are logged at error level.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	var cfgErr *domain.ConfigurationError
	var insufficient *domain.InsufficientDataError
	var unresolved *domain.UnresolvedFixtureError

	switch {
	case errors.As(err, &cfgErr):
		logger.ErrorContext(r.Context(), "handler: configuration error",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, cfgErr.Error())
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "insufficient signal",
			"fixture_id": insufficient.FixtureID,
			"market":     insufficient.Market,
		})
	case errors.As(err, &unresolved):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "fixture unresolved",
			"fixture_id": unresolved.FixtureID,
			"reason":     unresolved.Reason,
		})
	case errors.Is(err, domain.ErrDuplicateTrigger):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "duplicate"})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidCoupon), errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLockHeld):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusConflict, "fixture is being settled, retry later")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst untouched
// and reports false.
func decodeBody(r *http.Request, dst any) (bool, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("invalid request body: %w", err)
	}
	return true, nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// queryInt returns a positive integer query parameter, def when absent, or
// an error when malformed.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

// fixtureID parses the {id} path parameter as a fixture id.
func fixtureID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid fixture id %q", raw)
	}
	return id, nil
}

// pathParam extracts a named path parameter.
func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
