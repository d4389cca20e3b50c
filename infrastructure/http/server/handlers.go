package server

import (
	"net/http"
	"pinger/auth"
	"pinger/domain"
	"pinger/errors"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
	UniqueID string `json:"unique_id"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expires_in"`
	SessionID string          `json:"session_id"`
	Identity  domain.Identity `json:"identity"`
}

type pingRequest struct {
	To   *domain.Identity `json:"to"`
	From *domain.Identity `json:"from"`
}

type pingResponse struct {
	PingID       string                `json:"ping_id"`
	Result       domain.DeliveryStatus `json:"result"`
	TargetOnline bool                  `json:"target_online"`
}

type healthResponse struct {
	Status         string  `json:"status"`
	ConnectedUsers int     `json:"connected_users"`
	QueuedPings    int     `json:"queued_pings"`
	ActiveSessions int     `json:"active_sessions"`
	PingsDelivered uint64  `json:"pings_delivered"`
	PingsQueued    uint64  `json:"pings_queued"`
	PingsDropped   uint64  `json:"pings_dropped"`
	RSSBytes       uint64  `json:"rss_bytes"`
	CPUPercent     float64 `json:"cpu_percent"`
	Goroutines     int     `json:"goroutines"`
}

func (s *Server) login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		auth.AbortWithError(c, errors.ErrInvalidIdentity)
		return
	}

	session, err := s.store.Login(c.Request.Context(), domain.Identity{Username: body.Username, UniqueID: body.UniqueID})
	if err != nil {
		auth.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresIn: int64(session.ExpiresAt.Sub(session.IssuedAt).Seconds()),
		SessionID: session.ID,
		Identity:  session.Identity,
	})
}

func (s *Server) ping(c *gin.Context) {
	session, ok := auth.SessionFrom(c)
	if !ok {
		auth.AbortWithError(c, errors.ErrMissingToken)
		return
	}

	var body pingRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.To == nil {
		auth.AbortWithError(c, errors.ErrInvalidTarget)
		return
	}
	from := session.Identity
	if body.From != nil {
		from = *body.From
	}

	result, err := s.dispatcher.Ping(c.Request.Context(), session, from, *body.To)
	if err != nil {
		auth.AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status == domain.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, pingResponse{
		PingID:       result.PingID.String(),
		Result:       result.Status,
		TargetOnline: result.TargetOnline,
	})
}

func (s *Server) clients(c *gin.Context) {
	online := s.registry.ListOnline()
	if online == nil {
		online = []domain.Identity{}
	}
	c.JSON(http.StatusOK, online)
}

func (s *Server) health(c *gin.Context) {
	queued, err := s.queue.Count(c.Request.Context())
	status := "ok"
	if err != nil {
		s.log.Error("Failed to count queued pings", "error", err)
		status = "degraded"
	}

	stats := s.stats.GetLatest()
	c.JSON(http.StatusOK, healthResponse{
		Status:         status,
		ConnectedUsers: s.registry.Count(),
		QueuedPings:    queued,
		ActiveSessions: s.store.ActiveSessions(),
		PingsDelivered: stats.PingsDelivered,
		PingsQueued:    stats.PingsQueued,
		PingsDropped:   stats.PingsDropped,
		RSSBytes:       stats.RSSBytes,
		CPUPercent:     stats.CPUPercent,
		Goroutines:     stats.Goroutines,
	})
}
