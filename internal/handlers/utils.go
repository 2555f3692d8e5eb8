package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/internal/services"
	"github.com/bugtrackr/apiserver/internal/store"
)

type contextKey string

const contextActorKey contextKey = "actor"

// Healthz is a trivial liveness probe.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func actorFromContext(ctx context.Context) (auth.Actor, bool) {
	actor, ok := ctx.Value(contextActorKey).(auth.Actor)
	return actor, ok && actor.Authenticated()
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransitionErrorResponse reports a rejected status transition along
// with the states that would have been accepted.
type TransitionErrorResponse struct {
	Error   string   `json:"error"`
	Current string   `json:"current_status"`
	Allowed []string `json:"allowed_statuses"`
}

// writeServiceError translates the engine's error taxonomy to HTTP.
func writeServiceError(w http.ResponseWriter, err error) {
	var transitionErr *services.InvalidTransitionError
	switch {
	case errors.As(err, &transitionErr):
		allowed := make([]string, 0, len(transitionErr.Allowed))
		for _, status := range transitionErr.Allowed {
			allowed = append(allowed, string(status))
		}
		writeJSON(w, http.StatusConflict, TransitionErrorResponse{
			Error:   transitionErr.Error(),
			Current: string(transitionErr.Current),
			Allowed: allowed,
		})
	case errors.Is(err, services.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrAccountLocked):
		writeError(w, http.StatusForbidden, "account is temporarily locked due to multiple failed login attempts")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidOperation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "an error occurred, please try again")
	}
}
