// Package repository declares the credential-store contract. Services depend
// on UserRepository only; sqlite and mongo provide implementations.
package repository

import (
	"context"

	"github.com/sakif/videotube/internal/model"
)

// UserRepository persists user records.
//
// Every lookup returns an error wrapping apperror.ErrNotFound when nothing
// matches, and every write that would break username/email uniqueness returns
// one wrapping apperror.ErrConflict. The unique constraint lives in the store,
// so two racing registrations cannot both succeed.
type UserRepository interface {
	// Create inserts u and fills in ID, CreatedAt and UpdatedAt.
	// u.Password must already be a hash.
	Create(ctx context.Context, u *model.User) error

	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsernameOrEmail returns the first user whose username equals
	// username or whose email equals email. Empty arguments never match.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error)

	// SetRefreshToken writes only the refresh-token field. nil clears it.
	SetRefreshToken(ctx context.Context, id string, token *string) error

	// SetPassword writes only the password field; hash is already hashed.
	SetPassword(ctx context.Context, id, hash string) error

	// Update applies the non-nil fields of upd and returns the updated user.
	Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)

	Close() error
}
