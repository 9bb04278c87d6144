package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/storefront/apiserver/internal/services"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextSubjectKey contextKey = "sub"

// DataResponse wraps every successful payload.
type DataResponse struct {
	Data any `json:"data"`
}

// MessageResponse is a plain error payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// ValidationResponse lists rejected input fields.
type ValidationResponse struct {
	Errors []services.FieldError `json:"errors"`
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz answers 200 when the database responds to a ping.
func Healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func userIDFromContext(ctx context.Context) (int, error) {
	value := ctx.Value(contextSubjectKey)
	switch subject := value.(type) {
	case int:
		if subject < 1 {
			return 0, errors.New("invalid subject")
		}
		return subject, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(subject))
		if err != nil || parsed < 1 {
			return 0, errors.New("invalid subject")
		}
		return parsed, nil
	default:
		return 0, errors.New("missing subject")
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeData(w http.ResponseWriter, status int, value any) {
	writeJSON(w, status, DataResponse{Data: value})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unclassified errors are reported as 500 without their text.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validation  *services.ValidationError
		unique      *services.UniquenessError
		notFound    *services.NotFoundError
		conflict    *services.ConflictError
		consistency *services.InternalConsistencyError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: validation.Errors})
	case errors.As(err, &unique):
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: []services.FieldError{
			{FieldName: unique.Field, Error: "is already taken"},
		}})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &consistency):
		writeError(w, http.StatusInternalServerError, "the change was saved but could not be read back")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// parseIDList parses a comma separated id list such as "1,2,3". Blank input
// yields nil.
func parseIDList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
