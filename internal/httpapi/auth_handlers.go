package httpapi

import (
	"errors"
	"net/http"
	"time"

	"careportal.org/internal/audit"
	"careportal.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	Everywhere   bool   `json:"everywhere,omitempty"`
}

type sessionResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	Role             string    `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "session.login", map[string]any{
		"user_id":    user.ID,
		"role":       user.Role,
		"expires_at": pair.AccessExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		UserID:           user.ID,
		Role:             user.Role,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "session.refresh", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		UserID:           user.ID,
		Role:             user.Role,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials or session")
		return
	}
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	if req.Everywhere {
		err = a.sessions.LogoutAll(r.Context(), actor.UserID)
	} else {
		err = a.sessions.Logout(r.Context(), req.RefreshToken, actor.UserID)
	}
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "session.logout", map[string]any{
		"everywhere": req.Everywhere,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleMe is the current-actor accessor: the identity write paths use for
// provenance, surfaced for clients.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials or session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": actor.UserID,
		"roles":   actor.Roles,
	})
}

// handleAuthError maps the auth failure taxonomy onto HTTP. Authentication
// failures share one message regardless of cause; persistence failures map
// to a retryable status.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAuthenticationFailed):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials or session")
	case errors.Is(err, auth.ErrPersistence):
		writeError(w, r, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
