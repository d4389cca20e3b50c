// Package server exposes the pinger HTTP API and the WebSocket upgrade endpoint.
package server

import (
	"log/slog"
	"net/http"
	"pinger/auth"
	"pinger/contract"
	"pinger/infrastructure/ws"
	"pinger/observability"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type StatsSource interface {
	GetLatest() observability.MonitoringStats
}

type Options struct {
	TokenTTL           time.Duration
	ClientsRequireAuth bool
	Channel            ws.Options
}

type Server struct {
	log        *slog.Logger
	store      contract.IIdentityStore
	registry   contract.IRegistry
	dispatcher contract.IDispatcher
	queue      contract.IPendingPingRepository
	stats      StatsSource
	opts       Options
	upgrader   websocket.Upgrader
}

func NewServer(
	log *slog.Logger,
	store contract.IIdentityStore,
	registry contract.IRegistry,
	dispatcher contract.IDispatcher,
	queue contract.IPendingPingRepository,
	stats StatsSource,
	opts Options,
) *Server {
	return &Server{
		log:        log,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		queue:      queue,
		stats:      stats,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine serving every endpoint.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), AccessLog(s.log), CORS())

	r.POST("/login", s.login)
	r.POST("/ping", auth.RequireSession(s.store), s.ping)
	if s.opts.ClientsRequireAuth {
		r.GET("/clients", auth.RequireSession(s.store), s.clients)
	} else {
		r.GET("/clients", s.clients)
	}
	r.GET("/health", s.health)
	r.GET("/ws", s.upgrade)
	return r
}
