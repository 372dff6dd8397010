package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cachedIdentity struct {
	identity  Identity
	expiresAt time.Time
}

// TokenResolver verifies HS256 bearer tokens taken from a query parameter or the
// Authorization header. Verified tokens are cached until the cache TTL or the token's own
// expiry, whichever comes first.
type TokenResolver struct {
	secret     []byte
	queryParam string
	cache      *expirable.LRU[string, cachedIdentity]
	now        func() time.Time
}

func NewTokenResolver(secret, queryParam string, cacheSize int, cacheTTL time.Duration) *TokenResolver {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &TokenResolver{
		secret:     []byte(secret),
		queryParam: queryParam,
		cache:      expirable.NewLRU[string, cachedIdentity](cacheSize, nil, cacheTTL),
		now:        time.Now,
	}
}

func (t *TokenResolver) Resolve(r *http.Request) (*Identity, error) {
	raw := t.extract(r)
	if raw == "" {
		return nil, nil
	}

	if cached, ok := t.cache.Get(raw); ok {
		if cached.expiresAt.IsZero() || t.now().Before(cached.expiresAt) {
			id := cached.identity
			return &id, nil
		}
		t.cache.Remove(raw)
	}

	id, expiresAt, err := t.parse(raw)
	if err != nil {
		return nil, err
	}
	t.cache.Add(raw, cachedIdentity{identity: id, expiresAt: expiresAt})
	return &id, nil
}

func (t *TokenResolver) extract(r *http.Request) string {
	if t.queryParam != "" {
		if token := r.URL.Query().Get(t.queryParam); token != "" {
			return token
		}
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (t *TokenResolver) parse(raw string) (Identity, time.Time, error) {
	if len(t.secret) == 0 {
		return Identity{}, time.Time{}, fmt.Errorf("%w: no token secret configured", ErrInvalidToken)
	}

	parsed, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Identity{}, time.Time{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Identity{}, time.Time{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, time.Time{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	admin, _ := claims["admin"].(bool)
	role, _ := claims["role"].(string)

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return Identity{UserID: sub, Privileged: admin || role == "admin"}, expiresAt, nil
}

// IssueToken signs a token for id. The hub only verifies tokens; this is used by tooling
// and tests that need a valid one.
func IssueToken(secret string, id Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret not configured")
	}
	claims := jwt.MapClaims{
		"sub":   id.UserID,
		"admin": id.Privileged,
		"exp":   time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
