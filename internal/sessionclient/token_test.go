package sessionclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "patient-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = StaticToken("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestFileToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")

	_, err := FileToken{Path: path}.Token(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, os.WriteFile(path, []byte("  rotated-token\n"), 0o600))
	tok, err := FileToken{Path: path}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated-token", tok)

	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))
	_, err = FileToken{Path: path}.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestExpiryCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid jwt", signedToken(t, now.Add(time.Hour)), nil},
		{"expired jwt", signedToken(t, now.Add(-time.Minute)), ErrTokenExpired},
		{"inside leeway", signedToken(t, now.Add(10*time.Second)), ErrTokenExpired},
		{"opaque token", "not-a-jwt", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := WithExpiryCheck(StaticToken(tt.token), 30*time.Second).(*expiryCheckedToken)
			src.now = func() time.Time { return now }

			tok, err := src.Token(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, tok)
		})
	}
}
