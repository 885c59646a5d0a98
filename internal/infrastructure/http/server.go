package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	handlers "github.com/wekeepgrowing/payment-reconciler/internal/adapter/handler/http"
	"github.com/wekeepgrowing/payment-reconciler/internal/config"
	"github.com/wekeepgrowing/payment-reconciler/internal/middleware/auth"
	"github.com/wekeepgrowing/payment-reconciler/internal/middleware/ratelimit"
	"github.com/wekeepgrowing/payment-reconciler/pkg/logger"
	"go.uber.org/zap"
)

// Handlers groups the HTTP adapters the server routes to
type Handlers struct {
	Checkout *handlers.CheckoutHandler
	Webhook  *handlers.WebhookHandler
	Refund   *handlers.RefundHandler
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	handlers Handlers
}

func NewServer(cfg *config.Config, log *zap.Logger, h Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	logger.WithEchoLogger(e, log)

	e.Use(middleware.RequestID())
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.Recover())
	if len(cfg.Server.HTTP.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.HTTP.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	s := &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		handlers: h,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
	}

	// Storefront and merchant API
	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))
	v1.POST("/checkout", s.handlers.Checkout.Create)
	v1.GET("/checkout/status/:sessionId", s.handlers.Checkout.Status)
	v1.POST("/orders/:orderId/refunds", s.handlers.Refund.Create, auth.RequireRole("admin", "merchant"))

	// Gateway redirect targets, reached by the buyer's browser
	s.echo.GET("/checkout/success", s.handlers.Checkout.Success)
	s.echo.GET("/checkout/cancel", s.handlers.Checkout.Cancel)

	// Gateway webhooks (outside API versioning)
	limiter := ratelimit.PerIP(ratelimit.Config{
		Rate:   s.config.Webhooks.RateLimit,
		Burst:  s.config.Webhooks.Burst,
		Logger: s.logger,
	})
	webhooks := s.echo.Group("/webhooks", limiter)
	webhooks.POST("/gateway", s.handlers.Webhook.Handle)
	webhooks.GET("/status", s.handlers.Webhook.Status)
	if s.config.Webhooks.LegacyEnabled {
		s.logger.Warn("Legacy unsigned webhook endpoint enabled")
		webhooks.POST("/gateway-legacy", s.handlers.Webhook.HandleLegacy)
	}
}
