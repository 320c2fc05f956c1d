// Package service holds the account business logic.
//
//	AccountHandler (HTTP) → AccountService (rules) → UserRepository (store)
//	                                            ↘ TokenService, PasswordService, media.Uploader
//
// Session lifecycle per user:
//
//	Anonymous --Login--> Authenticated --Refresh--> Authenticated
//	                           |
//	                        Logout
//	                           v
//	                       Anonymous
//
// A user holds at most one valid refresh token: the one stored on the record.
// Login and Refresh overwrite it, Logout clears it, and a refresh token that
// does not equal the stored value is rejected even when its signature and
// expiry are fine. That is what catches reuse of a rotated-out token.
//
// The service never sets cookies or reads requests; every user it returns has
// been through model.User.Sanitized.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/videotube/internal/apperror"
	"github.com/sakif/videotube/internal/auth"
	"github.com/sakif/videotube/internal/media"
	"github.com/sakif/videotube/internal/model"
	"github.com/sakif/videotube/internal/repository"
)

// AccountService orchestrates registration, sessions and profile changes.
type AccountService struct {
	users     repository.UserRepository
	uploader  media.Uploader
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	uploader media.Uploader,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		uploader:  uploader,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput carries the registration form. AvatarPath and CoverImagePath
// are local files already staged by the HTTP layer.
type RegisterInput struct {
	Username       string
	Email          string
	FullName       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// LoginInput identifies the user by username or email; either may be empty,
// not both.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is what Login hands back to the handler, which sets the cookies.
type LoginResult struct {
	User *model.User `json:"user"`
	TokenPair
}

// =========================================================================
// REGISTRATION
// =========================================================================

// Register creates an account. The order of checks matters to callers:
// missing fields, then an existing username/email, then the avatar file.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := normalize(in.Username)
	email := normalize(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	for _, f := range []struct{ name, value string }{
		{"username", username},
		{"email", email},
		{"fullName", fullName},
		{"password", strings.TrimSpace(in.Password)},
	} {
		if f.value == "" {
			return nil, apperror.ValidationFailed(f.name, "All fields are required")
		}
	}

	existing, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		field := "email"
		if existing.Username == username {
			field = "username"
		}
		return nil, apperror.Conflict(field, "User with email or username already exists")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/account: checking existing user: %w", err)
	}

	if in.AvatarPath == "" {
		return nil, apperror.ValidationFailed("avatar", "Avatar file is required")
	}

	avatar := s.uploader.Upload(ctx, in.AvatarPath)
	if avatar == nil || avatar.URL == "" {
		return nil, apperror.UploadFailed("avatar", "Error while uploading avatar")
	}

	var coverURL string
	if cover := s.uploader.Upload(ctx, in.CoverImagePath); cover != nil {
		coverURL = cover.URL
	}

	hash, err := s.hashPassword("password", in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:   username,
		Email:      email,
		FullName:   fullName,
		Avatar:     avatar.URL,
		CoverImage: coverURL,
		Password:   hash,
	}
	// A racing registration that passed the pre-check is stopped here by the
	// store's unique index and comes back as ErrConflict.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/account: creating user %q: %w", username, err)
	}

	created, err := s.users.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, apperror.Internal("Something went wrong while registering the user", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", created.ID),
		slog.String("username", created.Username),
	)

	return created.Sanitized(), nil
}

// =========================================================================
// SESSIONS
// =========================================================================

// Login checks the password and starts a session.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := normalize(in.Username)
	email := normalize(in.Email)
	if username == "" && email == "" {
		return nil, apperror.ValidationFailed("username", "username or email is required")
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("User does not exist")
		}
		return nil, fmt.Errorf("service/account: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.Password, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("login rejected", slog.String("userID", user.ID))
			return nil, apperror.Unauthorized("Invalid user credentials")
		}
		return nil, apperror.Internal("Something went wrong while logging in", err)
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &LoginResult{User: user.Sanitized(), TokenPair: *pair}, nil
}

// Logout clears the stored refresh token, which invalidates every refresh
// token issued so far. Access tokens stay valid until they expire.
func (s *AccountService) Logout(ctx context.Context, userID string) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return fmt.Errorf("service/account: clearing refresh token for %s: %w", userID, err)
	}
	s.logger.Info("user logged out", slog.String("userID", userID))
	return nil
}

// Refresh rotates the session: the presented token must be the stored one,
// and on success it is replaced by a new one.
func (s *AccountService) Refresh(ctx context.Context, incoming string) (*TokenPair, error) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return nil, apperror.Unauthorized("Unauthorized request")
	}

	userID, err := s.tokens.VerifyRefreshToken(incoming)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid refresh token")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid refresh token")
		}
		return nil, fmt.Errorf("service/account: loading user %s: %w", userID, err)
	}

	if !user.HasRefreshToken(incoming) {
		s.logger.Warn("stale refresh token presented", slog.String("userID", userID))
		return nil, apperror.Unauthorized("Refresh token is expired or used")
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("session refreshed", slog.String("userID", userID))
	return pair, nil
}

// startSession mints a token pair and stores the refresh half on the user.
// Only the refresh-token field is written.
func (s *AccountService) startSession(ctx context.Context, user *model.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Email, user.Username, user.FullName)
	if err != nil {
		return nil, apperror.Internal("Something went wrong while generating tokens", err)
	}

	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, apperror.Internal("Something went wrong while generating tokens", err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, &refresh); err != nil {
		return nil, fmt.Errorf("service/account: storing refresh token for %s: %w", user.ID, err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// =========================================================================
// PROFILE
// =========================================================================

// ChangePassword writes a new hash after the old password checks out. The
// current refresh token is left alone.
func (s *AccountService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperror.ValidationFailed("newPassword", "New password is required")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/account: loading user %s: %w", userID, err)
	}

	if err := s.passwords.Verify(user.Password, oldPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperror.Unauthorized("Invalid old password")
		}
		return apperror.Internal("Something went wrong while changing the password", err)
	}

	hash, err := s.hashPassword("newPassword", newPassword)
	if err != nil {
		return err
	}

	if err := s.users.SetPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/account: storing password for %s: %w", userID, err)
	}

	s.logger.Info("password changed", slog.String("userID", userID))
	return nil
}

// CurrentUser returns the authenticated caller's record.
func (s *AccountService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/account: loading user %s: %w", userID, err)
	}
	return user.Sanitized(), nil
}

// UpdateAccount changes the full name and email. Both are required.
func (s *AccountService) UpdateAccount(ctx context.Context, userID, fullName, email string) (*model.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalize(email)
	if fullName == "" || email == "" {
		return nil, apperror.ValidationFailed("fullName", "All fields are required")
	}

	user, err := s.users.Update(ctx, userID, model.UserUpdate{
		FullName: &fullName,
		Email:    &email,
	})
	if err != nil {
		return nil, fmt.Errorf("service/account: updating account %s: %w", userID, err)
	}
	return user.Sanitized(), nil
}

// UpdateAvatar uploads a new avatar and points the user at it. The old
// object is not deleted from the bucket.
func (s *AccountService) UpdateAvatar(ctx context.Context, userID, localPath string) (*model.User, error) {
	url, err := s.uploadImage(ctx, "avatar", "Avatar", localPath)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Update(ctx, userID, model.UserUpdate{Avatar: &url})
	if err != nil {
		return nil, fmt.Errorf("service/account: updating avatar for %s: %w", userID, err)
	}
	return user.Sanitized(), nil
}

func (s *AccountService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*model.User, error) {
	url, err := s.uploadImage(ctx, "coverImage", "Cover image", localPath)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Update(ctx, userID, model.UserUpdate{CoverImage: &url})
	if err != nil {
		return nil, fmt.Errorf("service/account: updating cover image for %s: %w", userID, err)
	}
	return user.Sanitized(), nil
}

func (s *AccountService) uploadImage(ctx context.Context, field, label, localPath string) (string, error) {
	if localPath == "" {
		return "", apperror.ValidationFailed(field, label+" file is missing")
	}
	res := s.uploader.Upload(ctx, localPath)
	if res == nil || res.URL == "" {
		return "", apperror.UploadFailed(field, "Error while uploading "+strings.ToLower(label))
	}
	return res.URL, nil
}

// hashPassword maps the bcrypt length limit to a validation error on field.
func (s *AccountService) hashPassword(field, plaintext string) (string, error) {
	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed(field, "Password must be 72 bytes or fewer")
		}
		return "", apperror.Internal("Something went wrong while hashing the password", err)
	}
	return hash, nil
}

// normalize trims and lowercases usernames and emails.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
