package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  "test-access-secret-32-chars-long",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "test-refresh-secret-32-chars-lng",
		RefreshTTL:    24 * time.Hour,
		Issuer:        "videotube-test",
	}
}

// newTestTokenService creates a TokenService with fixed, known secrets so
// tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testTokenConfig())
	require.NoError(t, err)
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *TokenConfig)
	}{
		{"short access secret", func(c *TokenConfig) { c.AccessSecret = "short" }},
		{"short refresh secret", func(c *TokenConfig) { c.RefreshSecret = "short" }},
		{"same secrets", func(c *TokenConfig) { c.RefreshSecret = c.AccessSecret }},
		{"zero access ttl", func(c *TokenConfig) { c.AccessTTL = 0 }},
		{"negative refresh ttl", func(c *TokenConfig) { c.RefreshTTL = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTokenConfig()
			tt.mutate(&cfg)
			_, err := NewTokenService(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewTokenService_DefaultIssuer(t *testing.T) {
	cfg := testTokenConfig()
	cfg.Issuer = ""
	ts, err := NewTokenService(cfg)
	require.NoError(t, err)
	assert.Equal(t, "videotube", ts.issuer)
}

// =========================================================================
// ACCESS TOKENS
// =========================================================================

func TestAccessToken_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueAccessToken("user-1", "alice@x.com", "alice", "Alice A")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "token doesn't look like a JWT")

	claims, err := ts.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "Alice A", claims.FullName)
	assert.Equal(t, "videotube-test", claims.Issuer)
}

func TestAccessToken_Expired(t *testing.T) {
	ts := newTestTokenService(t)
	ts.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := ts.IssueAccessToken("user-1", "a@x.com", "a", "A")
	require.NoError(t, err)

	ts.now = time.Now
	_, err = ts.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessToken_TamperedSignature(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.IssueAccessToken("user-1", "a@x.com", "a", "A")

	tampered := token[:len(token)-3] + "xxx"

	_, err := ts.VerifyAccessToken(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

// =========================================================================
// REFRESH TOKENS
// =========================================================================

func TestRefreshToken_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueRefreshToken("user-42")
	require.NoError(t, err)

	userID, err := ts.VerifyRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestRefreshToken_UniquePerIssue(t *testing.T) {
	ts := newTestTokenService(t)
	frozen := time.Now()
	ts.now = func() time.Time { return frozen }

	// Same user, same instant: only the jti tells them apart.
	t1, err := ts.IssueRefreshToken("user-1")
	require.NoError(t, err)
	t2, err := ts.IssueRefreshToken("user-1")
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
}

func TestRefreshToken_Expired(t *testing.T) {
	ts := newTestTokenService(t)
	ts.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := ts.IssueRefreshToken("user-1")
	require.NoError(t, err)
	ts.now = time.Now

	_, err = ts.VerifyRefreshToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

// The two token kinds are signed with different keys, so neither can stand
// in for the other.
func TestTokens_AreNotInterchangeable(t *testing.T) {
	ts := newTestTokenService(t)

	access, _ := ts.IssueAccessToken("user-1", "a@x.com", "a", "A")
	refresh, _ := ts.IssueRefreshToken("user-1")

	_, err := ts.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ts.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_WrongSecret(t *testing.T) {
	ts1 := newTestTokenService(t)

	cfg := testTokenConfig()
	cfg.RefreshSecret = "another-refresh-secret-32-chars!"
	ts2, err := NewTokenService(cfg)
	require.NoError(t, err)

	token, _ := ts1.IssueRefreshToken("user-1")
	_, err = ts2.VerifyRefreshToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_WrongIssuer(t *testing.T) {
	ts1 := newTestTokenService(t)
	cfg := testTokenConfig()
	cfg.Issuer = "someone-else"
	ts2, err := NewTokenService(cfg)
	require.NoError(t, err)

	token, _ := ts2.IssueRefreshToken("user-1")
	_, err = ts1.VerifyRefreshToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	ts := newTestTokenService(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "videotube-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ts.VerifyRefreshToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_MissingSubject(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.sign(refreshClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "videotube-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, ts.refreshSecret)
	require.NoError(t, err)

	_, err = ts.VerifyRefreshToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token", "abc"} {
		_, err := ts.VerifyRefreshToken(in)
		assert.ErrorIs(t, err, ErrTokenInvalid, "input %q", in)
	}
}
