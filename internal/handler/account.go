package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/sakif/videotube/internal/apperror"
	"github.com/sakif/videotube/internal/auth"
	"github.com/sakif/videotube/internal/model"
	"github.com/sakif/videotube/internal/service"
)

// Accounts is the service surface the handler needs. *service.AccountService
// implements it.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Logout(ctx context.Context, userID string) error
	Refresh(ctx context.Context, incoming string) (*service.TokenPair, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*model.User, error)
	UpdateAvatar(ctx context.Context, userID, localPath string) (*model.User, error)
	UpdateCoverImage(ctx context.Context, userID, localPath string) (*model.User, error)
}

// Options configures cookies and multipart staging.
type Options struct {
	SecureCookies bool
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	TempDir       string
	MaxMemory     int64 // bytes of a multipart form kept in memory
}

// AccountHandler serves /api/v1/users.
//
// HANDLER RESPONSIBILITIES:
//   - decode JSON or form bodies, or stage multipart files
//   - call the service
//   - set or clear the session cookies
//   - write the envelope
//
// Business rules live in the service; the handler only translates.
type AccountHandler struct {
	accounts Accounts
	opts     Options
	stager   stager
	logger   *slog.Logger
}

func NewAccountHandler(accounts Accounts, opts Options, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		opts:     opts,
		stager:   stager{dir: opts.TempDir, maxMemory: opts.MaxMemory},
		logger:   logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// HandleRegister creates an account from a multipart form.
//
// HTTP: POST /api/v1/users/register
// Form: username, email, fullName, password, avatar (file), coverImage (file, optional)
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	files, cleanup, err := h.stager.stage(r, "avatar", "coverImage")
	defer cleanup()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username:       r.FormValue("username"),
		Email:          r.FormValue("email"),
		FullName:       r.FormValue("fullName"),
		Password:       r.FormValue("password"),
		AvatarPath:     files["avatar"],
		CoverImagePath: files["coverImage"],
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, "User registered successfully")
}

// HandleLogin checks credentials and sets both session cookies.
//
// HTTP: POST /api/v1/users/login
// Body: {"username":"alice","password":"..."} or {"email":"...","password":"..."}
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), service.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSessionCookies(w, res.TokenPair)
	writeSuccess(w, http.StatusOK, res, "User logged in successfully")
}

// HandleLogout ends the session.
//
// HTTP: POST /api/v1/users/logout (authenticated)
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.accounts.Logout(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, nil, "User logged out successfully")
}

// HandleRefresh rotates the token pair.
//
// HTTP: POST /api/v1/users/refresh-token
// The refresh token is read from the refreshToken cookie, or from the JSON or
// form body field of the same name when there is no cookie.
func (h *AccountHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	incoming := ""
	if c, err := r.Cookie(auth.RefreshTokenCookie); err == nil {
		incoming = c.Value
	}
	if incoming == "" {
		// A body that does not decode carries no token; the service answers
		// that with 401.
		var req refreshRequest
		if err := decodeBody(r, &req); err == nil {
			incoming = req.RefreshToken
		}
	}

	pair, err := h.accounts.Refresh(r.Context(), incoming)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSessionCookies(w, *pair)
	writeSuccess(w, http.StatusOK, pair, "Access token refreshed")
}

// HandleChangePassword verifies the old password and stores a new one.
//
// HTTP: POST /api/v1/users/change-password (authenticated)
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil, "Password changed successfully")
}

// HandleCurrentUser returns the caller's profile.
//
// HTTP: GET /api/v1/users/current-user (authenticated)
func (h *AccountHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, "Current user fetched successfully")
}

// HandleUpdateAccount changes the full name and email.
//
// HTTP: PATCH /api/v1/users/update-account (authenticated)
// Body: {"fullName":"...","email":"..."}
func (h *AccountHandler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req updateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.accounts.UpdateAccount(r.Context(), userID, req.FullName, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, "Account details updated successfully")
}

// HandleUpdateAvatar replaces the avatar.
//
// HTTP: PATCH /api/v1/users/avatar (authenticated, multipart field "avatar")
func (h *AccountHandler) HandleUpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.accounts.UpdateAvatar, "Avatar image updated successfully")
}

// HandleUpdateCoverImage replaces the cover image.
//
// HTTP: PATCH /api/v1/users/cover-image (authenticated, multipart field "coverImage")
func (h *AccountHandler) HandleUpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.accounts.UpdateCoverImage, "Cover image updated successfully")
}

func (h *AccountHandler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	update func(ctx context.Context, userID, localPath string) (*model.User, error),
	message string,
) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	files, cleanup, err := h.stager.stage(r, field)
	defer cleanup()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := update(r.Context(), userID, files[field])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, message)
}

// requireUser reads the caller set by auth.RequireAuth. It only fails when a
// route was mounted without the middleware.
func (h *AccountHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("Unauthorized request"))
		return "", false
	}
	return userID, true
}

// =========================================================================
// COOKIES
// =========================================================================

// Both cookies are HttpOnly so page scripts cannot read them. Secure is on
// unless explicitly disabled for plain-HTTP local development.
func (h *AccountHandler) sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
	}
}

func (h *AccountHandler) setSessionCookies(w http.ResponseWriter, pair service.TokenPair) {
	http.SetCookie(w, h.sessionCookie(auth.AccessTokenCookie, pair.AccessToken, int(h.opts.AccessTTL.Seconds())))
	http.SetCookie(w, h.sessionCookie(auth.RefreshTokenCookie, pair.RefreshToken, int(h.opts.RefreshTTL.Seconds())))
}

// clearSessionCookies uses the same attributes as setSessionCookies; browsers
// only drop a cookie when name, path and flags line up.
func (h *AccountHandler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.sessionCookie(auth.AccessTokenCookie, "", -1))
	http.SetCookie(w, h.sessionCookie(auth.RefreshTokenCookie, "", -1))
}

// =========================================================================
// BODY DECODING
// =========================================================================

var errEmptyBody = apperror.ValidationFailed("body", "Request body is required")

// formRequest is a request struct that can also be filled from an
// application/x-www-form-urlencoded body.
type formRequest interface {
	fromForm(form url.Values)
}

func (req *loginRequest) fromForm(form url.Values) {
	req.Username = form.Get("username")
	req.Email = form.Get("email")
	req.Password = form.Get("password")
}

func (req *refreshRequest) fromForm(form url.Values) {
	req.RefreshToken = form.Get("refreshToken")
}

func (req *changePasswordRequest) fromForm(form url.Values) {
	req.OldPassword = form.Get("oldPassword")
	req.NewPassword = form.Get("newPassword")
}

func (req *updateAccountRequest) fromForm(form url.Values) {
	req.FullName = form.Get("fullName")
	req.Email = form.Get("email")
}

// decodeBody fills dst from a form-encoded body when the Content-Type says so,
// and from JSON otherwise.
func decodeBody(r *http.Request, dst formRequest) error {
	if isForm(r.Header.Get("Content-Type")) {
		return decodeForm(r, dst)
	}
	return decodeJSON(r, dst)
}

func isForm(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/x-www-form-urlencoded"
}

func decodeForm(r *http.Request, dst formRequest) error {
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "Request body too large")
		}
		return apperror.ValidationFailed("body", "Invalid form body")
	}
	dst.fromForm(r.PostForm)
	return nil
}

// decodeJSON decodes the body into dst. Size limits are enforced upstream by
// a MaxBytesReader; hitting one becomes a validation error.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case errors.As(err, &tooLarge):
		return apperror.ValidationFailed("body", "Request body too large")
	default:
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
}
