package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/practiceperfect/api/internal/database"
)

var (
	ErrNotFound = errors.New("user not found")
)

// Repository handles user data persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// CreateIfNotExists inserts a user for the email or returns the existing one.
// The upsert keeps concurrent first logins for the same address from racing
// into a duplicate-key failure.
func (r *Repository) CreateIfNotExists(ctx context.Context, email string, displayName *string) (*User, error) {
	dbUser := &database.User{
		Email:       email,
		DisplayName: displayName,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		On("CONFLICT (email) DO UPDATE SET updated_at = NOW()").
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// UpdateDisplayName sets a user's display name
func (r *Repository) UpdateDisplayName(ctx context.Context, userID uuid.UUID, displayName string) (*User, error) {
	dbUser := new(database.User)
	result, err := r.db.NewUpdate().
		Model(dbUser).
		Set("display_name = ?", displayName).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	return mapDBUserToModel(dbUser), nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:           dbu.ID,
		Email:        dbu.Email,
		PasswordHash: dbu.PasswordHash,
		DisplayName:  dbu.DisplayName,
		CreatedAt:    dbu.CreatedAt,
		UpdatedAt:    dbu.UpdatedAt,
	}
}
