package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negi-jagdish/village-im/internal/errs"
)

const testSecret = "unit-test-secret"

type fakeSessions map[string]string

func (f fakeSessions) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := f[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func sign(t *testing.T, userID int64, secret string, ttl time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newAuth(sess fakeSessions) *Auth {
	return New(sess, Options{
		Secret:       testSecret,
		RedisPrefix:  "token:app:",
		Header:       "Authorization",
		BearerPrefix: "Bearer ",
		QueryKey:     "token",
	})
}

func TestVerify(t *testing.T) {
	token := sign(t, 42, testSecret, time.Hour)
	a := newAuth(fakeSessions{"token:app:42": token})

	uid, err := a.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
}

func TestVerifyRejects(t *testing.T) {
	valid := sign(t, 42, testSecret, time.Hour)
	tests := []struct {
		name  string
		token string
		sess  fakeSessions
	}{
		{"empty token", "", fakeSessions{}},
		{"garbage token", "not-a-jwt", fakeSessions{}},
		{"wrong secret", sign(t, 42, "other-secret", time.Hour), fakeSessions{}},
		{"expired", sign(t, 42, testSecret, -time.Minute), fakeSessions{}},
		{"no session", valid, fakeSessions{}},
		{"session superseded", valid, fakeSessions{"token:app:42": "newer-token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuth(tt.sess)
			_, err := a.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrAuth))
		})
	}
}

func TestFromRequest(t *testing.T) {
	a := newAuth(fakeSessions{})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", a.FromRequest(r))

	r = httptest.NewRequest("GET", "/ws?token=q456", nil)
	assert.Equal(t, "q456", a.FromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	assert.Equal(t, "", a.FromRequest(r))
}
