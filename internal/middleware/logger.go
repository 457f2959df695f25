package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ZapLogger logs every request with zap. Long-lived event streams are
// logged when they end, at debug level.
func ZapLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			err := next(c)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Int64("bytes_out", res.Size),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
				zap.String("user_agent", req.UserAgent()),
			}

			// Add request ID if available
			if reqID := res.Header().Get(echo.HeaderXRequestID); reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}

			switch {
			case err != nil:
				fields = append(fields, zap.Error(err))
				zap.L().Error("Request failed", fields...)
			case res.Status >= 500:
				zap.L().Error("Server error", fields...)
			case res.Status >= 400:
				zap.L().Warn("Client error", fields...)
			case strings.HasPrefix(res.Header().Get(echo.HeaderContentType), "text/event-stream"):
				zap.L().Debug("Event stream closed", fields...)
			default:
				zap.L().Info("Request completed", fields...)
			}

			return err
		}
	}
}
