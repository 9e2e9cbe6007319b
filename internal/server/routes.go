package server

import (
	"log/slog"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/iamvishnuk/poll-server/internal/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.config.Origins(),
	}))
	s.echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem: "poll_server",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	s.registerPollRoutes()
	s.registerWebsocketRoutes()
	s.registerHealthRoutes()

	s.echo.GET("/metrics", echoprometheus.NewHandler())
}

func (s *Server) registerPollRoutes() {
	api := s.echo.Group("/api/v1")
	api.Use(newRateLimiter(s.config.RequestRateLimit, s.config.RequestRateBurst))

	api.POST("/poll", s.handleCreatePoll)
	api.GET("/poll", s.handleListPolls)
	api.GET("/poll/:id", s.handleGetPoll)
	api.POST("/poll/:id/vote", s.handleCastVote, newVoteRateLimit(s.voteLimiter))
	api.POST("/poll/:id/close", s.handleClosePoll)
	api.DELETE("/poll/:id", s.handleDeletePoll)
}

func (s *Server) registerWebsocketRoutes() {
	s.echo.GET("/ws", s.handleGlobalWebsocket)
	s.echo.GET("/ws/:poll_id", s.handlePollWebsocket)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
