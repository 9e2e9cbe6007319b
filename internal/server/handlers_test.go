package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iamvishnuk/poll-server/internal/broadcast"
	"github.com/iamvishnuk/poll-server/internal/config"
	"github.com/iamvishnuk/poll-server/internal/domain"
	apperrors "github.com/iamvishnuk/poll-server/internal/errors"
)

// --- Mock poll service ---

type mockPollService struct {
	createFn func(ctx context.Context, question, description string, options []string) (*domain.Poll, error)
	getFn    func(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error)
	listFn   func(ctx context.Context) ([]*domain.Poll, error)
	voteFn   func(ctx context.Context, pollID uuid.UUID, option string) (*domain.VoteResult, error)
	closeFn  func(ctx context.Context, pollID uuid.UUID) error
	deleteFn func(ctx context.Context, pollID uuid.UUID) error
}

func (m *mockPollService) CreatePoll(ctx context.Context, question, description string, options []string) (*domain.Poll, error) {
	if m.createFn != nil {
		return m.createFn(ctx, question, description, options)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockPollService) GetPoll(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	if m.getFn != nil {
		return m.getFn(ctx, pollID)
	}
	return nil, domain.ErrPollNotFound
}

func (m *mockPollService) ListPolls(ctx context.Context) ([]*domain.Poll, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockPollService) CastVote(ctx context.Context, pollID uuid.UUID, option string) (*domain.VoteResult, error) {
	if m.voteFn != nil {
		return m.voteFn(ctx, pollID, option)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockPollService) ClosePoll(ctx context.Context, pollID uuid.UUID) error {
	if m.closeFn != nil {
		return m.closeFn(ctx, pollID)
	}
	return nil
}

func (m *mockPollService) DeletePoll(ctx context.Context, pollID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, pollID)
	}
	return nil
}

// --- Test helpers ---

func newTestConfig() *config.Config {
	return &config.Config{
		AppEnv:           "test",
		Port:             "8080",
		RedisURL:         "redis://localhost:6379",
		LogLevel:         "info",
		LogFormat:        "text",
		AllowedOrigins:   "*",
		MaxConnections:   100,
		RequestRateLimit: 1000,
		RequestRateBurst: 1000,
		VoteRateLimit:    1000,
		VoteRateBurst:    1000,
		WSMaxPerIP:       10,
		WSConnectRate:    1000,
		WSConnectBurst:   1000,
		ShutdownTimeout:  5 * time.Second,
	}
}

// voteLimiterFunc adapts a function to the VoteLimiter interface.
type voteLimiterFunc func(ctx context.Context, key string) (bool, error)

func (f voteLimiterFunc) Allow(ctx context.Context, key string) (bool, error) {
	return f(ctx, key)
}

func allowAllVotes() VoteLimiter {
	return voteLimiterFunc(func(context.Context, string) (bool, error) { return true, nil })
}

// newTestServer builds a server with the production routes and error
// middleware. The prometheus middleware is left out so repeated construction
// across tests does not re-register collectors; pass nil cfg for defaults.
func newTestServer(t *testing.T, cfg *config.Config, polls pollService, checks ...HealthCheck) *Server {
	t.Helper()
	return newTestServerWithLimiter(t, cfg, polls, allowAllVotes(), checks...)
}

// newTestServerWithLimiter is newTestServer with a specific vote limiter
// installed before the routes capture it.
func newTestServerWithLimiter(t *testing.T, cfg *config.Config, polls pollService, limiter VoteLimiter, checks ...HealthCheck) *Server {
	t.Helper()

	if cfg == nil {
		cfg = newTestConfig()
	}

	registry := broadcast.NewRegistry(clockwork.NewRealClock(), cfg.MaxConnections)
	t.Cleanup(registry.Shutdown)

	e := echo.New()
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		polls:       polls,
		registry:    registry,
		voteLimiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.Origins()),
		},
		limits:       NewConnectionLimits(cfg.WSMaxPerIP, cfg.WSConnectRate, cfg.WSConnectBurst),
		healthChecks: checks,
		startTime:    time.Now(),
	}

	srv.registerPollRoutes()
	srv.registerWebsocketRoutes()
	srv.registerHealthRoutes()

	return srv
}

// doRequest runs a request through the full router, returning the recorder.
func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- Websocket helpers ---

func startTestServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialWebsocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wsMessage map[string]any

// readMessageOfType reads frames until one of the wanted type arrives.
func readMessageOfType(t *testing.T, conn *websocket.Conn, want string) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q message", want)

		var msg wsMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == want {
			return msg
		}
	}
}

// assertNoMessageOfType drains frames briefly and fails if one of the
// unwanted type shows up.
func assertNoMessageOfType(t *testing.T, conn *websocket.Conn, unwanted string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		require.NotEqual(t, unwanted, msg["type"], "unexpected %q message", unwanted)
	}
}

func sendControl(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.WriteJSON(msg))
}
