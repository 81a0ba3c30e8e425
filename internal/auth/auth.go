// Package auth validates bearer tokens for both the websocket handshake
// and the REST surface. A token must be a valid signed JWT AND match the
// session stored in redis, so logging in elsewhere revokes older tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/negi-jagdish/village-im/internal/errs"
)

// sessions is the slice of *redis.Client we use; tests substitute a fake.
type sessions interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret       string
	RedisPrefix  string // e.g. "token:app:"
	Header       string // e.g. "Authorization"
	BearerPrefix string // e.g. "Bearer "
	QueryKey     string // websocket handshake fallback
}

type Auth struct {
	rdb  sessions
	opts Options
}

func New(rdb sessions, opts Options) *Auth {
	return &Auth{rdb: rdb, opts: opts}
}

// FromRequest extracts the raw token from the configured header, falling
// back to the query parameter (browsers cannot set headers on websocket
// dials).
func (a *Auth) FromRequest(r *http.Request) string {
	if v := r.Header.Get(a.opts.Header); v != "" {
		return strings.TrimPrefix(v, a.opts.BearerPrefix)
	}
	return r.URL.Query().Get(a.opts.QueryKey)
}

// Verify checks signature, expiry and the redis session, and returns
// the authenticated user id. Rejections map to errs.ErrAuth; a redis
// outage is ErrTransient so callers don't treat it as a bad token.
func (a *Auth) Verify(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, errs.ErrAuth.WrapMsg("empty token")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.opts.Secret), nil
	})
	if err != nil {
		return 0, errs.ErrAuth.Wrap(err)
	}
	if claims.UserID <= 0 {
		return 0, errs.ErrAuth.WrapMsg("missing user id claim")
	}

	key := a.opts.RedisPrefix + strconv.FormatInt(claims.UserID, 10)
	stored, err := a.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, errs.ErrAuth.WrapMsg("session expired")
	}
	if err != nil {
		return 0, errs.ErrTransient.Wrap(err)
	}
	if stored != token {
		return 0, errs.ErrAuth.WrapMsg("session superseded")
	}
	return claims.UserID, nil
}
