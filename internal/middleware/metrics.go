package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/billing-service/prometheus"
)

// MetricsMiddleware adds prometheus metrics to track HTTP requests
func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		// c.Path is the route template, which keeps label cardinality bounded
		prometheus.RecordHTTPRequest(
			c.Request().Method,
			c.Path(),
			strconv.Itoa(c.Response().Status),
			time.Since(start),
		)
		return nil
	}
}
