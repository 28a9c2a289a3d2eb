package sessionclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoCredential = errors.New("no bearer credential available")
	ErrTokenExpired = errors.New("bearer credential has expired")
)

// TokenSource is the "current valid token" accessor. Issuing and renewing
// tokens belongs to the auth collaborator behind it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoCredential
	}
	return string(t), nil
}

// FileToken re-reads the token from Path on every request so an external
// auth process can rotate it in place.
type FileToken struct {
	Path string
}

func (f FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s not found", ErrNoCredential, f.Path)
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoCredential, f.Path)
	}
	return tok, nil
}

// expiryCheckedToken refuses JWTs whose exp claim has passed. Signatures
// are not verified here; that is the backend's job. Opaque (non-JWT)
// tokens pass through unchanged.
type expiryCheckedToken struct {
	inner  TokenSource
	leeway time.Duration
	now    func() time.Time
}

// WithExpiryCheck wraps a TokenSource so expired JWTs fail locally instead
// of costing a round trip.
func WithExpiryCheck(src TokenSource, leeway time.Duration) TokenSource {
	return &expiryCheckedToken{inner: src, leeway: leeway, now: time.Now}
}

func (e *expiryCheckedToken) Token(ctx context.Context) (string, error) {
	tok, err := e.inner.Token(ctx)
	if err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return tok, nil
	}
	if claims.ExpiresAt != nil && !e.now().Add(e.leeway).Before(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("%w (expired at %s)", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return tok, nil
}
