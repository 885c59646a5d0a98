package ratelimit

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config bounds requests per client IP
type Config struct {
	Rate      float64
	Burst     int
	ExpiresIn time.Duration
	Logger    *zap.Logger
}

// PerIP limits requests per client IP. A non-positive rate disables limiting.
func PerIP(config Config) echo.MiddlewareFunc {
	if config.Rate <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if config.ExpiresIn <= 0 {
		config.ExpiresIn = 3 * time.Minute
	}

	tooMany := func(c echo.Context) error {
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error": "Too many requests. Please try again later.",
			"code":  "RATE_LIMITED",
		})
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(config.Rate),
				Burst:     config.Burst,
				ExpiresIn: config.ExpiresIn,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return tooMany(c)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if config.Logger != nil {
				config.Logger.Warn("Rate limit exceeded",
					zap.String("ip", identifier),
					zap.String("path", c.Request().URL.Path))
			}
			return tooMany(c)
		},
	})
}
