package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/practiceperfect/api/internal/logging"
	"github.com/practiceperfect/api/internal/user"
)

var (
	ErrEmailRequired       = errors.New("email is required")
	ErrInvalidEmailFormat  = errors.New("invalid email format")
	ErrInvalidOrExpired    = errors.New("invalid or expired login code")
	ErrDisplayNameRequired = errors.New("display name is required")
	ErrDisplayNameTooLong  = errors.New("display name must be at most 100 characters")
)

// Service handles passwordless authentication business logic
type Service struct {
	loginTokens     LoginTokenRepository
	users           UserRepository
	sessions        TokenService
	emailService    EmailService
	logger          *logging.Logger
	loginTokenTTL   time.Duration
	sessionDuration time.Duration
	codeLength      int
}

func NewService(
	loginTokens LoginTokenRepository,
	users UserRepository,
	sessions TokenService,
	emailService EmailService,
	logger *logging.Logger,
	loginTokenTTL time.Duration,
	sessionDuration time.Duration,
	codeLength int,
) *Service {
	return &Service{
		loginTokens:     loginTokens,
		users:           users,
		sessions:        sessions,
		emailService:    emailService,
		logger:          logger,
		loginTokenTTL:   loginTokenTTL,
		sessionDuration: sessionDuration,
		codeLength:      codeLength,
	}
}

// RequestLogin issues a magic-link token and a short numeric code for the
// email and dispatches them by mail. Outstanding artifacts for the same
// email are left untouched so a resend does not invalidate a code the user
// already received. Works the same for unknown emails; account creation
// happens at verification time.
func (s *Service) RequestLogin(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	token, err := generateLoginToken()
	if err != nil {
		return fmt.Errorf("failed to generate login token: %w", err)
	}

	code, err := generateLoginCode(s.codeLength)
	if err != nil {
		return fmt.Errorf("failed to generate login code: %w", err)
	}

	expiresAt := time.Now().Add(s.loginTokenTTL)
	if err := s.loginTokens.Store(ctx, email, token, code, expiresAt); err != nil {
		return fmt.Errorf("failed to store login token: %w", err)
	}

	// Send the login email in a goroutine (non-blocking). A delivery failure
	// is logged but does not roll back the artifact; the user can retry.
	go func() {
		emailCtx := context.Background()
		if err := s.emailService.SendLoginEmail(emailCtx, email, token, code); err != nil {
			s.logger.Warn("failed to send login email", "email", email, "error", err)
		}
	}()

	return nil
}

// VerifyLoginToken consumes a magic-link token, resolving or creating the
// account and minting a session credential. The artifact is gone after the
// first success; a replay fails with ErrInvalidOrExpired.
func (s *Service) VerifyLoginToken(ctx context.Context, token string) (*user.User, string, error) {
	if token == "" {
		return nil, "", ErrInvalidOrExpired
	}

	email, err := s.loginTokens.ConsumeByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrLoginTokenNotFound) {
			return nil, "", ErrInvalidOrExpired
		}
		return nil, "", fmt.Errorf("failed to consume login token: %w", err)
	}

	return s.establishSession(ctx, email)
}

// VerifyLoginCode consumes a short code submitted together with its email.
// Wrong code, wrong email pairing, and expired code are indistinguishable
// to the caller.
func (s *Service) VerifyLoginCode(ctx context.Context, email, code string) (*user.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		// A malformed email can never match an artifact; keep the error
		// uniform to prevent probing.
		return nil, "", ErrInvalidOrExpired
	}
	if code == "" {
		return nil, "", ErrInvalidOrExpired
	}

	if err := s.loginTokens.ConsumeByCode(ctx, email, code); err != nil {
		if errors.Is(err, ErrLoginTokenNotFound) {
			return nil, "", ErrInvalidOrExpired
		}
		return nil, "", fmt.Errorf("failed to consume login code: %w", err)
	}

	return s.establishSession(ctx, email)
}

// Me returns the account for an authenticated user id
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateDisplayName changes the profile display name
func (s *Service) UpdateDisplayName(ctx context.Context, userID uuid.UUID, displayName string) (*user.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrDisplayNameRequired
	}
	if len(displayName) > 100 {
		return nil, ErrDisplayNameTooLong
	}

	return s.users.UpdateDisplayName(ctx, userID, displayName)
}

// establishSession upserts the user record for a verified email and mints a
// session token. Signup and login are the same operation in this flow.
func (s *Service) establishSession(ctx context.Context, email string) (*user.User, string, error) {
	displayName := displayNameFromEmail(email)
	u, err := s.users.CreateIfNotExists(ctx, email, &displayName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve user: %w", err)
	}

	sessionToken, err := s.sessions.CreateToken(u.ID, u.Email, s.sessionDuration)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session token: %w", err)
	}

	return u, sessionToken, nil
}

// normalizeEmail validates and case-normalizes an email address
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > 254 {
		return "", ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmailFormat
	}
	return strings.ToLower(email), nil
}

// displayNameFromEmail derives a default display name from the local part
func displayNameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
