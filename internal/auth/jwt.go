// Package auth issues and verifies the two JWTs of a session and hashes
// passwords.
//
// SESSION FLOW OVERVIEW:
//  1. Login verifies the password and mints an access + refresh token pair
//  2. Both go back in the JSON body and as HttpOnly cookies
//  3. Protected routes read the access token (cookie or Bearer header) via
//     RequireAuth and put the user id in the request context
//  4. When the access token expires the client POSTs its refresh token and
//     receives a new pair; the old refresh token stops working
//
// WHY TWO SECRETS?
// Access tokens are presented on every request and leak more easily. Signing
// them with a different key than refresh tokens means a leaked access token
// (or access key) cannot be turned into a long-lived session.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretLength = 16

var (
	// ErrTokenExpired means the signature was fine but exp has passed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers everything else: bad signature, wrong key,
	// wrong algorithm, wrong issuer, malformed input, missing subject.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenConfig holds the signing material and lifetimes for both token kinds.
type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewTokenService validates cfg and creates a TokenService.
// Example secret: ACCESS_TOKEN_SECRET=$(openssl rand -hex 32)
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.AccessSecret) < minSecretLength || len(cfg.RefreshSecret) < minSecretLength {
		return nil, fmt.Errorf("auth: token secrets must be at least %d characters", minSecretLength)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "videotube"
	}
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

// AccessTTL is how long an access token lives; handlers use it for cookie MaxAge.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is how long a refresh token lives.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// AccessClaims is the access-token payload: who the caller is, enough to
// render a profile header without a store lookup.
type AccessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// UserID is the "sub" claim.
func (c *AccessClaims) UserID() string { return c.Subject }

// refreshClaims carries only the user id. The jti makes every refresh token
// unique even when two are minted for the same user within one second, which
// is what lets rotation tell the old token from the new one.
type refreshClaims struct {
	jwt.RegisteredClaims
}

// IssueAccessToken signs an access token for the given identity.
func (s *TokenService) IssueAccessToken(userID, email, username, fullName string) (string, error) {
	now := s.now()
	c := AccessClaims{
		Email:    email,
		Username: username,
		FullName: fullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    s.issuer,
		},
	}
	return s.sign(c, s.accessSecret)
}

// IssueRefreshToken signs a refresh token bound to userID.
func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	now := s.now()
	c := refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			Issuer:    s.issuer,
		},
	}
	return s.sign(c, s.refreshSecret)
}

func (s *TokenService) sign(c jwt.Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses an access token and returns its claims.
func (s *TokenService) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	c := &AccessClaims{}
	if err := s.parse(tokenStr, c, s.accessSecret); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyRefreshToken parses a refresh token and returns the user id it was
// issued to. It does not check the token against the store; rotation and
// reuse detection are the caller's job.
func (s *TokenService) VerifyRefreshToken(tokenStr string) (string, error) {
	c := &refreshClaims{}
	if err := s.parse(tokenStr, c, s.refreshSecret); err != nil {
		return "", err
	}
	return c.Subject, nil
}

// parse verifies signature, algorithm, issuer and expiry, and requires a subject.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, a token with "alg":"none" (or an RSA public
// key used as an HMAC secret) could pass. jwt.WithValidMethods prevents this.
func (s *TokenService) parse(tokenStr string, c jwt.Claims, key []byte) error {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return ErrTokenInvalid
	}

	sub, err := c.GetSubject()
	if err != nil || sub == "" {
		return fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}
	return nil
}
