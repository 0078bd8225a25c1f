package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/natebag/MLG-BETA/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	rateLimitReasonPrincipalRate = "principal-rate"
	maxAuthorizeBodyBytes        = 64 << 10
)

type authorizeRateLimitKey struct {
	Principal string `json:"principal"`
}

// AuthorizeRateLimit throttles /authorize per principal. Requests without a
// readable principal pass through so the handler reports the validation error.
func (s *Server) AuthorizeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		principal, err := readAuthorizePrincipal(c)
		if err != nil {
			logger.FromContext(ctx).Warn("authorize rate limit read body failed", zap.Error(err))
			AbortWithError(c, bodyReadError(err))
			return
		}
		if principal == "" {
			c.Next()
			return
		}

		result, err := s.limiter.AllowPrincipal(ctx, principal)
		if err != nil {
			logger.FromContext(ctx).Warn("authorize rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("authorize rate limit exceeded",
				zap.String("reason", rateLimitReasonPrincipalRate),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonPrincipalRate)

			c.Header("Retry-After", retryAfterSeconds(result.RetryAfter.Seconds()))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonPrincipalRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func limitAuthorizeBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAuthorizeBodyBytes)
}

func bodyReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newValidationError("request", "request_too_large", "request body too large")
	}
	return invalidRequestError()
}

func readAuthorizePrincipal(c *gin.Context) (string, error) {
	limitAuthorizeBody(c)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload authorizeRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}

	return strings.TrimSpace(payload.Principal), nil
}

func retryAfterSeconds(seconds float64) string {
	if seconds < 1 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(seconds)))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
