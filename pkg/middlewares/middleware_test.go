package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type staticLimiter bool

func (s staticLimiter) Allow(context.Context) bool { return bool(s) }

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gin":     c.GetString(pkg.TraceId),
			"context": utils.TraceIDFromContext(c.Request.Context()),
		})
	})
	return r
}

func TestTraceID(t *testing.T) {
	r := newEngine(TraceID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(pkg.HeaderTraceId)
	assert.NotEmpty(t, generated)
	assert.JSONEq(t, `{"gin":"`+generated+`","context":"`+generated+`"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(pkg.HeaderTraceId, "caller-trace")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "caller-trace", w.Header().Get(pkg.HeaderTraceId))
}

func TestRateLimit(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine(TraceID(), RateLimit(zap.NewNop(), staticLimiter(true))).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newEngine(TraceID(), Metrics(), RateLimit(zap.NewNop(), staticLimiter(false))).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), pkg.ErrRateLimitedCode.Code)
}
