// Package handler serves organization-admin operations on sessions.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-tenancy/backend/internal/platform/apperror"
	"crm-tenancy/backend/internal/platform/httpio"
	"crm-tenancy/backend/internal/platform/logger"
	"crm-tenancy/backend/internal/platform/rbac"
	sessiondomain "crm-tenancy/backend/internal/session/domain"
)

// Revoker revokes every credential of a user.
type Revoker interface {
	RevokeAllForOwner(ctx context.Context, orgID, ownerID string, reason sessiondomain.RevokeReason) (int64, error)
}

// Server handles /api/v1/admin routes. Every route requires an owner or admin of the bound organization.
type Server struct {
	users   rbac.UserGetter
	revoker Revoker
}

// NewServer returns an admin Server.
func NewServer(users rbac.UserGetter, revoker Revoker) *Server {
	return &Server{users: users, revoker: revoker}
}

// Routes mounts the admin routes on r. r must already be tenant bound.
func (s *Server) Routes(r chi.Router) {
	r.Post("/users/{userID}/revoke-sessions", s.RevokeUserSessions)
}

type revokeResponse struct {
	Revoked int64 `json:"revoked"`
}

// RevokeUserSessions handles POST /api/v1/admin/users/{userID}/revoke-sessions. The target must belong
// to the caller's organization; users of other organizations are reported as not found.
func (s *Server) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, callerID, err := rbac.RequireOrgAdmin(ctx, s.users)
	switch {
	case errors.Is(err, rbac.ErrUnauthenticated):
		apperror.WriteError(w, apperror.ErrUnauthorized.WithCause(err))
		return
	case errors.Is(err, rbac.ErrForbidden):
		apperror.WriteError(w, apperror.ErrForbidden.WithCause(err))
		return
	case err != nil:
		logger.From(ctx).Error("admin: resolve caller", logger.Err(err))
		apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		apperror.WriteError(w, apperror.ErrNotFound)
		return
	}
	target, err := s.users.GetByID(ctx, targetID.String())
	if err != nil {
		logger.From(ctx).Error("admin: load target", logger.Err(err))
		apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		return
	}
	if target == nil || target.OrgID != orgID {
		apperror.WriteError(w, apperror.ErrNotFound)
		return
	}

	n, err := s.revoker.RevokeAllForOwner(ctx, orgID, target.ID, sessiondomain.RevokeAdmin)
	if err != nil {
		logger.From(ctx).Error("admin: revoke sessions", logger.Err(err))
		apperror.WriteError(w, apperror.ErrInternal.WithCause(err))
		return
	}
	logger.From(ctx).Info("admin revoked user sessions",
		logger.UserID(target.ID), logger.Op("revoke-sessions"), zap.String("actor_id", callerID))
	httpio.WriteJSON(w, http.StatusOK, revokeResponse{Revoked: n})
}
