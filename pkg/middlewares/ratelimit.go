package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"go.uber.org/zap"
)

// Limiter admits or rejects a request.
type Limiter interface {
	Allow(ctx context.Context) bool
}

// RateLimit rejects requests with 429 once limiter runs out of tokens.
func RateLimit(logger *zap.Logger, limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter.Allow(c.Request.Context()) {
			c.Next()
			return
		}
		resp := pkg.ToErrorResponse(logger, c.GetString(pkg.TraceId),
			pkg.NewAppError(pkg.ErrRateLimitedCode, pkg.ErrRateLimitedCode.Message, pkg.ErrRateLimitExceeded))
		c.AbortWithStatusJSON(resp.Status, resp)
	}
}
