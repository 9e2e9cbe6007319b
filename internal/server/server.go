package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"github.com/iamvishnuk/poll-server/internal/broadcast"
	"github.com/iamvishnuk/poll-server/internal/config"
	"github.com/iamvishnuk/poll-server/internal/domain"
)

// pollService is the slice of the poll engine the HTTP layer consumes.
type pollService interface {
	CreatePoll(ctx context.Context, question, description string, options []string) (*domain.Poll, error)
	GetPoll(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error)
	ListPolls(ctx context.Context) ([]*domain.Poll, error)
	CastVote(ctx context.Context, pollID uuid.UUID, option string) (*domain.VoteResult, error)
	ClosePoll(ctx context.Context, pollID uuid.UUID) error
	DeletePoll(ctx context.Context, pollID uuid.UUID) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	polls         pollService
	registry      *broadcast.Registry
	voteLimiter   VoteLimiter
	snapshotGroup singleflight.Group

	upgrader websocket.Upgrader
	limits   *ConnectionLimits

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, polls pollService, registry *broadcast.Registry, voteLimiter VoteLimiter, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:        e,
		config:      cfg,
		polls:       polls,
		registry:    registry,
		voteLimiter: voteLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.Origins()),
		},
		limits:       NewConnectionLimits(cfg.WSMaxPerIP, cfg.WSConnectRate, cfg.WSConnectBurst),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
