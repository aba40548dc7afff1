package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/practiceperfect/api/internal/database"
)

var ErrLoginTokenNotFound = errors.New("login token not found")

// Repository handles login artifact persistence in Postgres
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Store persists a new login artifact. Prior artifacts for the same email
// stay valid until one of them is consumed, so a resend does not break a
// code the user already has in hand.
func (r *Repository) Store(ctx context.Context, email, token, code string, expiresAt time.Time) error {
	dbToken := &database.LoginToken{
		Email:     email,
		TokenHash: hashToken(token),
		CodeHash:  hashToken(code),
		ExpiresAt: expiresAt,
	}

	_, err := r.db.NewInsert().
		Model(dbToken).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store login token: %w", err)
	}

	return nil
}

// ConsumeByToken deletes the unexpired artifact matching the magic-link
// token and returns its email. The conditional delete is the concurrency
// guard: of two requests racing on the same artifact, only one sees a
// nonzero row count. Every remaining artifact for the email is removed in
// the same transaction.
func (r *Repository) ConsumeByToken(ctx context.Context, token string) (string, error) {
	tokenHash := hashToken(token)

	var email string
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// DELETE ... RETURNING only yields rows this statement actually
		// removed, so the loser of a concurrent race sees no rows.
		matched := new(database.LoginToken)
		err := tx.NewDelete().
			Model(matched).
			Where("token_hash = ?", tokenHash).
			Where("expires_at > NOW()").
			Returning("*").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrLoginTokenNotFound
			}
			return fmt.Errorf("failed to consume login token: %w", err)
		}

		email = matched.Email
		return r.deleteAllForEmail(ctx, tx, email)
	})
	if err != nil {
		return "", err
	}

	return email, nil
}

// ConsumeByCode deletes the unexpired artifact matching the email and code.
// Same guarantees as ConsumeByToken.
func (r *Repository) ConsumeByCode(ctx context.Context, email, code string) error {
	codeHash := hashToken(code)

	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewDelete().
			Model((*database.LoginToken)(nil)).
			Where("email = ?", email).
			Where("code_hash = ?", codeHash).
			Where("expires_at > NOW()").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to consume login code: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrLoginTokenNotFound
		}

		return r.deleteAllForEmail(ctx, tx, email)
	})
}

// DeleteExpired removes artifacts past their expiry. Run periodically; the
// consume queries never match expired rows, so this is housekeeping only.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.LoginToken)(nil)).
		Where("expires_at < NOW()").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired login tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rowsAffected, nil
}

// deleteAllForEmail invalidates every outstanding artifact for the email,
// including ones issued after the consumed artifact.
func (r *Repository) deleteAllForEmail(ctx context.Context, tx bun.Tx, email string) error {
	_, err := tx.NewDelete().
		Model((*database.LoginToken)(nil)).
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to invalidate login tokens: %w", err)
	}
	return nil
}
