package middleware

import (
	"net/http"
	"strings"
	"time"

	"Guardline/pkg/cache"
	"Guardline/pkg/logger"
	"Guardline/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 决定一段时间内重复请求的拒绝窗口
	Prefix     string
}

// IdempotencyMiddleware rejects a repeated Idempotency-Key on the same route
// with 409. Requests without the header pass through. The key is kept only
// when the request succeeded or itself ended in a conflict; any other
// failure (validation, rate limit, coverage, 5xx) releases it so the
// client can retry with the same key.
func IdempotencyMiddleware(store cache.Cache, cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "idem:"
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		storeKey := cfg.Prefix + c.Request.Method + ":" + route + ":" + key

		ok, err := store.SetNX(c.Request.Context(), storeKey, time.Now().Unix(), cfg.TTL)
		if err != nil {
			logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			response.Abort(c, http.StatusConflict, http.StatusConflict, "duplicate request", gin.H{"idempotency_key": key})
			return
		}

		c.Next()

		if releaseKey(c.Writer.Status()) {
			_ = store.Delete(c.Request.Context(), storeKey)
		}
	}
}

func releaseKey(status int) bool {
	return status >= http.StatusBadRequest && status != http.StatusConflict
}
