package repository

import (
	"context"
	"errors"

	"github.com/contactly/accounts/internal/domain/entity"
)

// ErrNotFound is returned by every lookup-then-mutate operation when no
// user matches the given key. Absence is an expected outcome, not a panic.
var ErrNotFound = errors.New("user not found")

// UserRepository defines the database operations on user records.
// Each call is a single statement with an implicit commit; callers that
// need cross-operation atomicity must arrange it themselves.
type UserRepository interface {
	// GetByEmail returns the user identified by email, or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*entity.User, error)

	// GetByID returns the user identified by id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// Create inserts u and fills in its generated fields
	// (ID, CreatedAt, UpdatedAt).
	Create(ctx context.Context, u *entity.User) error

	// UpdateRefreshToken sets (or clears, when token is nil) the user's
	// refresh token and mirrors the change onto u.
	UpdateRefreshToken(ctx context.Context, u *entity.User, token *string) error

	// ConfirmEmail marks the user with the given email as confirmed.
	// Returns ErrNotFound when no such user exists.
	ConfirmEmail(ctx context.Context, email string) error

	// UpdateAvatar sets (or clears) the avatar URL for the user with the
	// given email and returns the freshly reloaded row.
	UpdateAvatar(ctx context.Context, email string, url *string) (*entity.User, error)

	// SetPassword stores the already-hashed credential for the user with
	// the given email and returns the freshly reloaded row.
	SetPassword(ctx context.Context, email, password string) (*entity.User, error)

	// UpdateResetToken sets (or clears) the user's password reset token
	// and mirrors the change onto u.
	UpdateResetToken(ctx context.Context, u *entity.User, token *string) error
}
