package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/db"
)

// Logger emits one structured line per request. Tenant and caller fields are
// filled only when the tenant and JWT middlewares ran earlier in the chain.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			ctx := c.Request().Context()
			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())

			if tenant := db.TenantFromContext(ctx); tenant != "" {
				evt = evt.Str("tenant", tenant)
			}
			if id := auth.IdentityFromContext(ctx); id.UserID != uuid.Nil {
				evt = evt.Stringer("user_id", id.UserID).Str("role", id.Role)
			}

			evt.Msg("request")
			return err
		}
	}
}
