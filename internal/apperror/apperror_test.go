package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("username", "username is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("email", "email already taken"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("Invalid refresh token"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "UploadFailed wraps ErrUpload",
			err:       UploadFailed("avatar", "avatar upload failed"),
			target:    ErrUpload,
			wantMatch: true,
		},
		{
			name:      "Internal with cause wraps ErrInternal",
			err:       Internal("boom", errors.New("disk full")),
			target:    ErrInternal,
			wantMatch: true,
		},
		{
			name:      "Wrapped twice still matches",
			err:       fmt.Errorf("service: %w", fmt.Errorf("repo: %w", NotFound("user", "x"))),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrUnauthorized",
			err:       NotFound("user", "abc123"),
			target:    ErrUnauthorized,
			wantMatch: false,
		},
		{
			name:      "UploadFailed does NOT match ErrValidation",
			err:       UploadFailed("avatar", "nope"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMatch, errors.Is(tt.err, tt.target))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{"NotFound includes resource and id", NotFound("user", "abc123"), "user not found with id abc123"},
		{"NotFoundMessage uses custom message", NotFoundMessage("User does not exist"), "User does not exist"},
		{"ValidationFailed uses custom message", ValidationFailed("email", "email is required"), "email is required"},
		{"Internal hides the cause", Internal("Something went wrong", errors.New("secret sql")), "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.err.Error())
		})
	}
}

func TestInternal_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("Something went wrong", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestFieldIsSet(t *testing.T) {
	assert.Equal(t, "email", ValidationFailed("email", "invalid").Field)
	assert.Equal(t, "username", Conflict("username", "taken").Field)
	assert.Equal(t, "coverImage", UploadFailed("coverImage", "failed").Field)
}
