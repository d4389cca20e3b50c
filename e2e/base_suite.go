package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"pinger/auth"
	"pinger/client"
	"pinger/domain"
	httpserver "pinger/infrastructure/http/server"
	"pinger/infrastructure/storage"
	"pinger/infrastructure/ws"
	"pinger/moderation"
	"pinger/observability"
	"pinger/protocol"
	"pinger/runtime"
	"pinger/runtime/workers"
	"pinger/services"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const frameTimeout = 3 * time.Second

type BaseSuite struct {
	suite.Suite
	Config Config
	Client *client.Client

	cancel context.CancelFunc
	server *httptest.Server
}

// SetupSuite loads the environment configuration and starts a server when none is given.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	addr := s.Config.ServerAddr
	if addr == "" {
		addr = s.startServer()
	}
	s.Client, err = client.New(addr)
	s.Require().NoError(err)
}

func (s *BaseSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// startServer wires the same components as cmd/pinger, on an in-memory store.
func (s *BaseSuite) startServer() string {
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelInfo)

	db, err := storage.OpenBadger("", log)
	s.Require().NoError(err)
	reserved, err := runtime.LoadReservedWords()
	s.Require().NoError(err)
	moderator, err := moderation.NewModerator(reserved.Words, '*', log)
	s.Require().NoError(err)
	signer, err := auth.NewSigner("")
	s.Require().NoError(err)

	store := services.NewIdentityStore(log, signer, moderator, time.Hour, time.Minute)
	monitoring := observability.NewMonitoringManager(log, time.Second)
	registry := runtime.NewRegistry(log, store, 256)
	queue := storage.NewPendingPingRepository(db, log, monitoring, 100, time.Hour)
	limiter := services.NewFixedWindowLimiter(0, time.Minute)
	dispatcher := runtime.NewDispatcher(log, registry, store, queue, limiter, monitoring, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	sup := workers.NewSupervisor(log, 100*time.Millisecond)
	sup.Add(workers.NewPresenceFanout(log, registry.Events(), time.Second), monitoring)
	go sup.Run(ctx)

	api := httpserver.NewServer(log, store, registry, dispatcher, queue, monitoring, httpserver.Options{
		TokenTTL: time.Hour,
		Channel:  ws.Options{BufferSize: 64, WriteTimeout: time.Second, IdleTimeout: time.Minute},
	})
	s.server = httptest.NewServer(api.Router())
	s.cancel = func() {
		registry.CloseAll(domain.CloseServerShutdown, "test over")
		cancel()
		_ = db.Close()
	}
	return s.server.URL
}

// Step prints a header for a scenario step, then runs it.
func (s *BaseSuite) Step(name string, fn func()) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
	fn()
}

// Unique returns an identity nobody else in the run uses.
func (s *BaseSuite) Unique(username string) domain.Identity {
	return domain.Identity{Username: username, UniqueID: fmt.Sprintf("%s-%d", username, time.Now().UnixNano())}
}

func (s *BaseSuite) Login(identity domain.Identity) client.Session {
	session, err := s.Client.Login(context.Background(), identity)
	s.Require().NoError(err)
	return session
}

// Connect logs identity in and opens its channel.
func (s *BaseSuite) Connect(identity domain.Identity) (*client.Listener, client.Session) {
	session := s.Login(identity)
	listener, err := s.Client.Listen(context.Background(), session.Token)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = listener.Close() })
	return listener, session
}

// Await reads frames until match accepts one, skipping presence updates it does not want.
func (s *BaseSuite) Await(t *testing.T, listener *client.Listener, match func(protocol.Frame) bool) protocol.Frame {
	t.Helper()
	s.Require().NoError(listener.SetReadDeadline(time.Now().Add(frameTimeout)))
	for {
		frame, err := listener.Next()
		s.Require().NoError(err)
		if match(frame) {
			return frame
		}
	}
}
