package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/ratelimit"
	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// APIKeyHeader carries the long-lived key credential.
const APIKeyHeader = "X-API-Key"

// Authenticator is the credential gate. An API-key header, when present, is
// exclusively authoritative; bearer tokens are consulted only in its absence.
type Authenticator struct {
	keys    scrape.KeyStore
	limiter *ratelimit.Limiter
	tokens  *TokenVerifier
	logger  *zap.Logger
}

// New constructs an Authenticator. The token verifier may be nil when no
// identity provider is configured; bearer requests then fail closed.
func New(keys scrape.KeyStore, limiter *ratelimit.Limiter, tokens *TokenVerifier, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{keys: keys, limiter: limiter, tokens: tokens, logger: logger}
}

// Authenticate resolves the request to a principal or fails with a generic
// authentication error. Key lookup misses and inactive keys produce the same
// outward error so key existence is not leaked.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (scrape.Principal, error) {
	if rawKey := r.Header.Get(APIKeyHeader); rawKey != "" {
		return a.authenticateKey(ctx, rawKey)
	}

	if bearer := bearerToken(r); bearer != "" {
		if a.tokens == nil {
			a.logger.Warn("bearer token presented but no verifier configured")
			return scrape.Principal{}, scrape.NewAuthError("")
		}
		principal, err := a.tokens.Verify(ctx, bearer)
		if err != nil {
			a.logger.Warn("bearer token rejected", zap.Error(err))
			return scrape.Principal{}, scrape.NewAuthError("")
		}
		return principal, nil
	}

	return scrape.Principal{}, scrape.NewAuthError("not authenticated")
}

func (a *Authenticator) authenticateKey(ctx context.Context, rawKey string) (scrape.Principal, error) {
	key, err := a.keys.GetByHash(ctx, HashKey(rawKey))
	if err != nil {
		if !errors.Is(err, scrape.ErrNotFound) {
			a.logger.Error("api key lookup failed", zap.Error(err))
			return scrape.Principal{}, scrape.NewInternalError("")
		}
		return scrape.Principal{}, scrape.NewAuthError("invalid or inactive API key")
	}
	if !key.Active {
		return scrape.Principal{}, scrape.NewAuthError("invalid or inactive API key")
	}

	if a.limiter != nil {
		if err := a.limiter.Allow(ctx, "apikey:"+key.ID, key.RateLimit); err != nil {
			return scrape.Principal{}, err
		}
	}

	if err := a.keys.IncrementUsage(ctx, key.ID); err != nil {
		// Usage accounting must not block admission.
		a.logger.Warn("api key usage increment failed", zap.String("key_id", key.ID), zap.Error(err))
	}

	return scrape.Principal{Subject: key.PrincipalID, APIKeyID: key.ID}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
