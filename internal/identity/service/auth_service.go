// Package service implements password login and directory provisioning.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-tenancy/backend/internal/audit"
	"crm-tenancy/backend/internal/platform/logger"
	"crm-tenancy/backend/internal/platform/ratelimit"
	"crm-tenancy/backend/internal/security"
	sessionservice "crm-tenancy/backend/internal/session/service"
	"crm-tenancy/backend/internal/telemetry"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

// Sentinel errors for auth service; the HTTP handler maps them to status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrTooManyAttempts        = errors.New("too many login attempts")
)

// RateLimitedError is returned by Login when the attempt budget for the email and client is spent.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%v; retry after %s", ErrTooManyAttempts, e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionIssuer starts a session for a verified principal.
type SessionIssuer interface {
	Issue(ctx context.Context, p userdomain.Principal) (*sessionservice.Tokens, error)
}

// AuthService implements password login.
type AuthService struct {
	users   UserRepo
	hasher  *security.Hasher
	issuer  SessionIssuer
	limiter ratelimit.Limiter
	audit   audit.AuditLogger
	metrics *telemetry.Metrics
}

// NewAuthService returns an AuthService with the given dependencies. limiter, auditLogger and
// metrics may be nil.
func NewAuthService(
	users UserRepo,
	hasher *security.Hasher,
	issuer SessionIssuer,
	limiter ratelimit.Limiter,
	auditLogger audit.AuditLogger,
	metrics *telemetry.Metrics,
) *AuthService {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AuthService{
		users:   users,
		hasher:  hasher,
		issuer:  issuer,
		limiter: limiter,
		audit:   auditLogger,
		metrics: metrics,
	}
}

// Login verifies email and password and starts a new session. Unknown email, wrong password and
// disabled account all return ErrInvalidCredentials after the same bcrypt work.
func (s *AuthService) Login(ctx context.Context, email, password string) (*sessionservice.Tokens, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "auth.Login")
	defer span.End()

	email = normalizeEmail(email)
	ip := audit.ClientIPFromContext(ctx)
	log := logger.From(ctx).With(logger.Component("login"), logger.ClientIP(ip))

	res, err := s.limiter.Allow(ctx, email+"|"+ip)
	switch {
	case err != nil:
		// The limiter backend is down; fail open so an outage of redis is not an outage of login.
		log.Error("login rate limiter unavailable", logger.Err(err))
	case !res.Allowed:
		s.metrics.Login("rate_limited")
		s.audit.LogEvent(ctx, "", "", audit.ActionLoginRateLimited, audit.ResourceSession,
			fmt.Sprintf(`{"email":%q}`, email))
		log.Warn("login rate limited", zap.Duration("retry_after", res.RetryAfter))
		return nil, &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	if email == "" || password == "" {
		s.hasher.CompareDecoy([]byte(password))
		return nil, s.fail(ctx, log, nil, "empty email or password")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.metrics.Login("error")
		return nil, fmt.Errorf("login: load user: %w", err)
	}
	if user == nil {
		s.hasher.CompareDecoy([]byte(password))
		return nil, s.fail(ctx, log, nil, "unknown email")
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, s.fail(ctx, log, user, "password mismatch")
	}
	if !user.Active() {
		return nil, s.fail(ctx, log, user, "user disabled")
	}

	tokens, err := s.issuer.Issue(ctx, user.Principal())
	if err != nil {
		s.metrics.Login("error")
		return nil, fmt.Errorf("login: %w", err)
	}
	s.metrics.Login("ok")
	s.audit.LogEvent(ctx, user.OrgID, user.ID, audit.ActionLoginSuccess, audit.ResourceSession, "")
	log.Info("login ok", logger.UserID(user.ID), logger.OrgID(user.OrgID))
	return tokens, nil
}

func (s *AuthService) fail(ctx context.Context, log *zap.Logger, user *userdomain.User, reason string) error {
	var orgID, userID string
	if user != nil {
		orgID, userID = user.OrgID, user.ID
	}
	s.metrics.Login("invalid")
	s.audit.LogEvent(ctx, orgID, userID, audit.ActionLoginFailure, audit.ResourceSession,
		fmt.Sprintf(`{"reason":%q}`, reason))
	log.Info("login rejected", logger.Reason(reason), logger.UserID(userID))
	return ErrInvalidCredentials
}

// CreateUser provisions a directory entry with a bcrypt password hash. Used by seeding and admin tooling.
func (s *AuthService) CreateUser(ctx context.Context, orgID, email, password string, role userdomain.Role) (*userdomain.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		OrgID:        orgID,
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !simpleEmail.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return errors.New("password must contain at least one uppercase letter")
	case !hasLower:
		return errors.New("password must contain at least one lowercase letter")
	case !hasNumber:
		return errors.New("password must contain at least one number")
	case !hasSymbol:
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
