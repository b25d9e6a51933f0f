package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// AuthService handles registration, login and account suspension.
type AuthService struct {
	users      repository.UserRepository
	admins     repository.AdminRepository
	tokens     *auth.TokenManager
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies bundles collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	AdminRepo  repository.AdminRepository
	Tokens     *auth.TokenManager
	Logger     *zap.Logger
	BcryptCost int
}

// AuthResult carries a signed token and its expiry.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
}

// NewAuthService constructs the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		admins:     deps.AdminRepo,
		tokens:     deps.Tokens,
		logger:     deps.Logger,
		bcryptCost: deps.BcryptCost,
	}
}

// RegisterUser creates an end-user account and issues a first token.
func (s *AuthService) RegisterUser(ctx context.Context, name, email, password string) (*domain.User, *AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || len(password) < 8 {
		return nil, nil, apperrors.NewValidationError("name, email and a password of at least 8 characters are required", nil)
	}
	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperrors.MapError(err)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	user := &domain.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, domain.SubjectTypeUser)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return user, &AuthResult{Token: token, ExpiresAt: expiresAt}, nil
}

// LoginUser authenticates an end-user and issues a token.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*domain.User, *AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if user.Suspended {
		return nil, nil, apperrors.NewForbidden("account suspended")
	}
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, domain.SubjectTypeUser)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return user, &AuthResult{Token: token, ExpiresAt: expiresAt}, nil
}

// LoginAdmin authenticates an admin and issues a token.
func (s *AuthService) LoginAdmin(ctx context.Context, email, password string) (*domain.Admin, *AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(admin.PasswordHash, password); err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !admin.Active {
		return nil, nil, apperrors.NewForbidden("admin account deactivated")
	}
	token, expiresAt, err := s.tokens.GenerateToken(admin.ID, domain.SubjectTypeAdmin)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return admin, &AuthResult{Token: token, ExpiresAt: expiresAt}, nil
}

// SetUserSuspension toggles suspension on a user account. Idempotent; the
// reason is only stored when suspending.
func (s *AuthService) SetUserSuspension(ctx context.Context, adminID, userID string, suspend bool, reason *string) (*domain.User, error) {
	user, err := s.users.SetSuspended(ctx, userID, suspend, reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user suspension toggled",
		zap.String("admin_id", adminID),
		zap.String("user_id", userID),
		zap.Bool("suspended", suspend))
	return user, nil
}
