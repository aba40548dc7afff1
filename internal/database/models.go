package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the bun table model for accounts. Emails are stored lowercased;
// uniqueness is enforced by the database. PasswordHash is kept for
// compatibility with accounts imported from the old password flow and is
// never read by the passwordless path.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email        string     `bun:"email,notnull,unique"`
	PasswordHash *string    `bun:"password_hash"`
	DisplayName  *string    `bun:"display_name"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// LoginToken is the bun table model for outstanding login verification
// artifacts. One row is created per login request; a row carries both the
// magic-link token and the short code, stored as SHA-256 digests. All rows
// for an email are deleted when any one of them is consumed.
type LoginToken struct {
	bun.BaseModel `bun:"table:login_tokens,alias:lt"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email     string    `bun:"email,notnull"`
	TokenHash string    `bun:"token_hash,notnull,unique"`
	CodeHash  string    `bun:"code_hash,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
