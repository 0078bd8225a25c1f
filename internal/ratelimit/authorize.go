package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/natebag/MLG-BETA/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const keyAuthorizePrincipal = "ratelimit:authorize:%s"

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
}

// AuthorizeLimiter throttles authorization attempts per principal so a
// single caller cannot hammer the wallet backend with paid requests.
type AuthorizeLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

// NewAuthorizeLimiter returns nil when rate limiting is disabled.
func NewAuthorizeLimiter(p Params) (*AuthorizeLimiter, error) {
	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if p.Redis == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.AuthorizeRate <= 0 || limitCfg.AuthorizeBurst <= 0 {
		return nil, errors.New("authorize rate limit must be positive")
	}

	return &AuthorizeLimiter{
		enabled: true,
		bucket:  NewTokenBucket(p.Redis),
		rate:    limitCfg.AuthorizeRate,
		burst:   limitCfg.AuthorizeBurst,
	}, nil
}

func (l *AuthorizeLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowPrincipal takes one authorize token for principal. A disabled limiter
// always allows.
func (l *AuthorizeLimiter) AllowPrincipal(ctx context.Context, principal string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return &RateLimitResult{}, ErrEmptyKey
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyAuthorizePrincipal, principal), l.rate, l.burst)
}
