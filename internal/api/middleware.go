package api

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestid.Get(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if rpcMethod, ok := c.Get(ctxRPCMethod); ok {
			fields = append(fields, zap.Any("rpc_method", rpcMethod))
		}
		if len(c.Errors) > 0 {
			log.Warn("request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Debug("request", fields...)
	}
}
