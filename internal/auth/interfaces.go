package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/practiceperfect/api/internal/user"
)

// TokenService defines the interface for session token creation and validation.
type TokenService interface {
	CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*SessionClaims, error)
}

// LoginTokenRepository defines the interface for login artifact storage.
// Consume methods must be atomic: of two concurrent calls matching the same
// artifact, at most one may succeed, and a successful consume removes every
// outstanding artifact for the email.
type LoginTokenRepository interface {
	Store(ctx context.Context, email, token, code string, expiresAt time.Time) error
	ConsumeByToken(ctx context.Context, token string) (string, error)
	ConsumeByCode(ctx context.Context, email, code string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// UserRepository defines the user store operations the auth flow needs
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	CreateIfNotExists(ctx context.Context, email string, displayName *string) (*user.User, error)
	UpdateDisplayName(ctx context.Context, userID uuid.UUID, displayName string) (*user.User, error)
}

// EmailService defines the interface for the mail-delivery collaborator
type EmailService interface {
	SendLoginEmail(ctx context.Context, toEmail, token, code string) error
}

// RateLimiter throttles issuance and code verification. Limiter failures
// are advisory; handlers log them and let the request through.
type RateLimiter interface {
	CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequest(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
	CheckEmailAttempts(ctx context.Context, email string) (bool, error)
	RecordEmailAttempt(ctx context.Context, email string) error
	ClearEmailAttempts(ctx context.Context, email string) error
}
