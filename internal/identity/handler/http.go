// Package handler exposes login, refresh, logout and the caller's identity over HTTP.
package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"crm-tenancy/backend/internal/db"
	"crm-tenancy/backend/internal/identity/service"
	"crm-tenancy/backend/internal/platform/apperror"
	"crm-tenancy/backend/internal/platform/httpio"
	"crm-tenancy/backend/internal/platform/logger"
	sessiondomain "crm-tenancy/backend/internal/session/domain"
	sessionservice "crm-tenancy/backend/internal/session/service"
	"crm-tenancy/backend/internal/tenancy"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

var errInvalidCredentials = apperror.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.")

// Authenticator performs password login.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*sessionservice.Tokens, error)
}

// Sessions refreshes and revokes sessions.
type Sessions interface {
	Refresh(ctx context.Context, presented string) (*sessionservice.Tokens, error)
	Logout(ctx context.Context, presented string) error
	RevokeAllForOwner(ctx context.Context, orgID, ownerID string, reason sessiondomain.RevokeReason) (int64, error)
}

// AuthHandler serves /api/v1/auth and /api/v1/me.
type AuthHandler struct {
	auth     Authenticator
	sessions Sessions
}

// NewAuthHandler returns an AuthHandler.
func NewAuthHandler(auth Authenticator, sessions Sessions) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

// PublicRoutes mounts the endpoints that run before any tenant is bound.
func (h *AuthHandler) PublicRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string                `json:"accessToken"`
	RefreshToken string                `json:"refreshToken"`
	ExpiresAt    time.Time             `json:"expiresAt"`
	Principal    *userdomain.Principal `json:"principal,omitempty"`
}

type meResponse struct {
	Principal  userdomain.Principal `json:"principal"`
	Source     string               `json:"source"`
	BoundOrgID string               `json:"boundOrgId"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpio.ReadJSON(w, r, &req); err != nil {
		apperror.WriteError(w, apperror.ErrBadRequest.WithCause(err))
		return
	}
	tokens, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var limited *service.RateLimitedError
		switch {
		case errors.As(err, &limited):
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
			apperror.WriteError(w, apperror.ErrTooManyRequests.WithCause(err))
		case errors.Is(err, service.ErrInvalidCredentials):
			apperror.WriteError(w, errInvalidCredentials.WithCause(err))
		default:
			logger.From(r.Context()).Error("login failed", logger.Err(err))
			apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		}
		return
	}
	p := tokens.Principal
	httpio.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.AccessExpiresAt,
		Principal:    &p,
	})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpio.ReadJSON(w, r, &req); err != nil {
		apperror.WriteError(w, apperror.ErrBadRequest.WithCause(err))
		return
	}
	tokens, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, sessionservice.ErrInvalidRefreshToken) {
			apperror.WriteError(w, apperror.ErrUnauthorized.WithCause(err))
			return
		}
		logger.From(r.Context()).Error("refresh failed", logger.Err(err))
		apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		return
	}
	httpio.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.AccessExpiresAt,
	})
}

// Logout handles POST /api/v1/auth/logout. It answers 204 whether or not the token was usable.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpio.ReadJSON(w, r, &req); err != nil {
		apperror.WriteError(w, apperror.ErrBadRequest.WithCause(err))
		return
	}
	if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		logger.From(r.Context()).Error("logout failed", logger.Err(err))
		apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /api/v1/auth/logout-all. Requires a tenant bound from a bearer token.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenancy.FromContext(r.Context())
	if !ok || tc.Source != tenancy.SourceBearer || tc.Subject == "" {
		apperror.WriteError(w, apperror.ErrUnauthorized)
		return
	}
	if _, err := h.sessions.RevokeAllForOwner(r.Context(), tc.OrgID, tc.Subject, sessiondomain.RevokeLogout); err != nil {
		logger.From(r.Context()).Error("logout-all failed", logger.Err(err))
		apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/me: the caller's claims and the tenant the database session is bound to.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenancy.FromContext(ctx)
	if !ok {
		apperror.WriteError(w, apperror.ErrUnauthorized)
		return
	}
	q, err := tenancy.QuerierFrom(ctx)
	if err != nil {
		apperror.WriteError(w, apperror.ErrUnauthorized.WithCause(err))
		return
	}
	bound, err := db.CurrentTenant(ctx, q)
	if err != nil {
		logger.From(ctx).Error("read bound tenant", logger.Err(err))
		apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		return
	}
	httpio.WriteJSON(w, http.StatusOK, meResponse{
		Principal: userdomain.Principal{
			ID:    tc.Subject,
			Email: tc.Email,
			Role:  tc.Role,
			OrgID: tc.OrgID,
		},
		Source:     string(tc.Source),
		BoundOrgID: bound,
	})
}
