package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

type jwksFixture struct {
	key    *rsa.PrivateKey
	kid    string
	server *httptest.Server
	hits   int
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key, kid: "test-kid"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.hits++
		doc := map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": f.kid,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.RegisteredClaims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func TestTokenVerifier_ValidToken(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := NewTokenVerifier(NewJWKSCache(f.server.URL))

	signed := f.sign(t, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, f.kid)

	principal, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)
	require.Equal(t, "user-42", principal.Subject)
	require.Empty(t, principal.APIKeyID)
}

func TestTokenVerifier_ExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := NewTokenVerifier(NewJWKSCache(f.server.URL))

	signed := f.sign(t, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, f.kid)

	_, err := v.Verify(context.Background(), signed)
	require.Error(t, err)
}

func TestTokenVerifier_UnknownKidFailsAfterOneRefresh(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	cache := NewJWKSCache(f.server.URL)
	v := NewTokenVerifier(cache)

	signed := f.sign(t, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, "missing-kid")

	_, err := v.Verify(context.Background(), signed)
	require.Error(t, err)
	require.Equal(t, 1, f.hits)
}

func TestJWKSCache_CachesAcrossVerifications(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	cache := NewJWKSCache(f.server.URL)
	v := NewTokenVerifier(cache)

	for i := 0; i < 3; i++ {
		signed := f.sign(t, jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}, f.kid)
		_, err := v.Verify(context.Background(), signed)
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.hits)

	cache.Invalidate()
	signed := f.sign(t, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, f.kid)
	_, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)
	require.Equal(t, 2, f.hits)
}

func TestTokenVerifier_MalformedTokenRejected(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	v := NewTokenVerifier(NewJWKSCache(f.server.URL))

	_, err := v.Verify(context.Background(), "not.a.token")
	require.Error(t, err)
}
