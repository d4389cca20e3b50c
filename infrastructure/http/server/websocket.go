package server

import (
	"context"
	"pinger/auth"
	"pinger/domain"
	"pinger/errors"
	"pinger/infrastructure/ws"
	"pinger/protocol"

	"github.com/gin-gonic/gin"
)

// upgrade turns an authenticated request into a channel.
// The token is checked before upgrading so a refused client gets a plain HTTP 401.
func (s *Server) upgrade(c *gin.Context) {
	token := auth.BearerToken(c)
	if token == "" {
		auth.AbortWithError(c, errors.ErrMissingToken)
		return
	}
	if _, err := s.store.Inspect(c.Request.Context(), token); err != nil {
		s.log.Debug("WebSocket upgrade refused", "error", err)
		auth.AbortWithError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	channel := ws.NewChannel(s.log, conn, s.opts.Channel)
	go channel.WritePump()

	// 1. Admission and queue replay happen before any inbound frame is read
	connection, err := s.dispatcher.Connect(ctx, token, channel)
	if err != nil {
		s.log.Info("WebSocket admission refused", "error", err)
		_ = channel.Send(ctx, protocol.MustEncode(protocol.Error{Message: errors.Message(err)}))
		_ = channel.Close(domain.ClosePolicy, errors.Message(err))
		return
	}
	defer s.dispatcher.Disconnect(connection)

	// 2. Serve inbound frames until the channel goes away
	err = channel.ReadLoop(func(data []byte) {
		s.handleFrame(ctx, connection, channel, data)
	})
	s.log.Debug("WebSocket read loop ended", "identity", connection.Identity.Key(), "error", err)
}

func (s *Server) handleFrame(ctx context.Context, conn domain.Connection, channel domain.Channel, data []byte) {
	if protocol.IsKeepalive(data) {
		_ = channel.Send(ctx, []byte(protocol.KeepaliveEcho))
		return
	}

	frame, err := protocol.Decode(data)
	if err != nil {
		s.reply(ctx, channel, protocol.Error{Message: "invalid frame"})
		return
	}

	switch f := frame.(type) {
	case protocol.Heartbeat:
		s.reply(ctx, channel, protocol.Pong{})
	case protocol.PingRequest:
		session := domain.Session{ID: conn.SessionID, Identity: conn.Identity, State: domain.SessionBound}
		result, err := s.dispatcher.Ping(ctx, session, conn.Identity, f.To)
		if err != nil {
			s.reply(ctx, channel, protocol.Error{Message: errors.Message(err)})
			return
		}
		s.reply(ctx, channel, protocol.PingResult{Result: result.Status, TargetOnline: result.TargetOnline})
	default:
		s.reply(ctx, channel, protocol.Error{Message: "unsupported frame " + string(frame.FrameType())})
	}
}

func (s *Server) reply(ctx context.Context, channel domain.Channel, frame protocol.Frame) {
	if err := channel.Send(ctx, protocol.MustEncode(frame)); err != nil {
		s.log.Debug("Failed to reply on channel", "frame", frame.FrameType(), "error", err)
	}
}
