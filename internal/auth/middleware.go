package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	User        *domain.User
	Admin       *domain.Admin
}

// ID returns the subject's id.
func (p *Principal) ID() string {
	if p.User != nil {
		return p.User.ID
	}
	if p.Admin != nil {
		return p.Admin.ID
	}
	return ""
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
	admins repository.AdminRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, admins repository.AdminRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, admins: admins}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	principal, err := m.ResolveToken(c.Context(), parts[1])
	if err != nil {
		return err
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// ResolveToken parses a raw token and loads its principal. Suspended users
// and deactivated admins are rejected here rather than per handler. Shared
// with the websocket listener, which carries the token in the query string.
func (m *AuthMiddleware) ResolveToken(ctx context.Context, tokenStr string) (*Principal, error) {
	claims, err := m.tokens.ParseToken(tokenStr)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject}

	switch claims.Subject {
	case domain.SubjectTypeUser:
		user, err := m.users.GetByID(ctx, claims.SubjectID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, apperrors.NewUnauthorized("user not found")
			}
			return nil, apperrors.MapError(err)
		}
		if user.Suspended {
			return nil, apperrors.NewForbidden("account suspended")
		}
		principal.User = user
	case domain.SubjectTypeAdmin:
		admin, err := m.admins.GetByID(ctx, claims.SubjectID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, apperrors.NewUnauthorized("admin not found")
			}
			return nil, apperrors.MapError(err)
		}
		if !admin.Active {
			return nil, apperrors.NewForbidden("admin account deactivated")
		}
		principal.Admin = admin
	default:
		return nil, apperrors.NewUnauthorized("unknown subject")
	}

	return principal, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
