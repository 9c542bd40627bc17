package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// TokenVerifier validates short-lived bearer tokens issued by the external
// identity provider. Signatures are RS256 against the provider's JWKS.
type TokenVerifier struct {
	cache *JWKSCache
}

// NewTokenVerifier constructs a verifier backed by the given key cache.
func NewTokenVerifier(cache *JWKSCache) *TokenVerifier {
	return &TokenVerifier{cache: cache}
}

// Verify checks signature and expiry and returns the principal encoded in the
// token's subject claim. The returned error carries the specific cause for
// logging; callers collapse it to a generic authentication error outward.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (scrape.Principal, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}
		return v.cache.Key(ctx, kid)
	})
	if err != nil {
		return scrape.Principal{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return scrape.Principal{}, fmt.Errorf("token invalid")
	}
	if claims.Subject == "" {
		return scrape.Principal{}, fmt.Errorf("token missing subject")
	}
	return scrape.Principal{Subject: claims.Subject}, nil
}
