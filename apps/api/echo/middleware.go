package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	metricsvc "github.com/trezcool/masomo-guardian/services/metrics"
)

// rolesMiddleware only lets users having a role starting with any of the prefixes through.
func rolesMiddleware(prefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			usr := claims.user()
			for _, prefix := range prefixes {
				if usr.RoleStartsWith(prefix) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

// metricsMiddleware counts requests & their latencies per route.
func metricsMiddleware(m *metricsvc.Prometheus) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				// write the error response now to know its status
				ctx.Error(err)
			}

			route, method := ctx.Path(), ctx.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Response().Status)).Inc()
			m.HTTPRequestSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
