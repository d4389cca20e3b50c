// Package ws adapts a gorilla WebSocket connection to domain.Channel.
package ws

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"pinger/domain"
	"pinger/errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const maxMessageSize = 4096

type Options struct {
	BufferSize   int
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const (
	framePending int32 = iota
	frameWriting
	frameAbandoned
)

// outboundFrame is one payload waiting for the writer, with the slot its sender waits on.
type outboundFrame struct {
	payload []byte
	state   atomic.Int32
	result  chan error
}

// abandon withdraws a frame the writer has not picked up yet and returns cause.
// A frame already being written is waited for, so its outcome is never misreported.
func (f *outboundFrame) abandon(cause error) error {
	if f.state.CompareAndSwap(framePending, frameAbandoned) {
		return cause
	}
	return <-f.result
}

// Channel owns one WebSocket. Writes go through a bounded buffer drained by WritePump,
// the only goroutine allowed to write on the socket.
type Channel struct {
	log      *slog.Logger
	conn     *websocket.Conn
	opts     Options
	outbound chan *outboundFrame
	done     chan struct{}
	stopped  chan struct{}

	closeOnce   sync.Once
	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func NewChannel(log *slog.Logger, conn *websocket.Conn, opts Options) *Channel {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1
	}
	return &Channel{
		log:      log,
		conn:     conn,
		opts:     opts,
		outbound: make(chan *outboundFrame, opts.BufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Send hands payload to the writer and waits until it is on the wire.
// A nil error means the socket write succeeded. On ctx expiry a frame the writer
// has not started is withdrawn, so an error means the peer never gets it.
// A consumer too slow to keep its buffer from filling up is disconnected:
// it will drain its queue on reconnect.
func (c *Channel) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return errors.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	frame := &outboundFrame{payload: payload, result: make(chan error, 1)}
	select {
	case c.outbound <- frame:
	default:
		c.log.Warn("Outbound buffer full, closing slow channel", "capacity", cap(c.outbound))
		_ = c.Close(domain.CloseTryAgainLater, "slow consumer")
		return errors.ErrChannelFull
	}

	select {
	case err := <-frame.result:
		return err
	case <-ctx.Done():
		return frame.abandon(ctx.Err())
	case <-c.stopped:
		return frame.abandon(errors.ErrChannelClosed)
	}
}

// Close asks the writer to send a close frame with code and hang up. Only the first call counts.
func (c *Channel) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// Done is closed once the channel is closing.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// CloseCode returns the code the channel was closed with, 0 while open.
func (c *Channel) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// WritePump writes queued payloads and keepalive pings until the channel closes.
func (c *Channel) WritePump() {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.stopped)
	}()

	for {
		select {
		case frame := <-c.outbound:
			if err := c.write(frame); err != nil {
				c.log.Debug("WebSocket write failed", "error", err)
				_ = c.Close(domain.CloseNormal, "write failed")
				return
			}
		case <-ticker.C:
			deadline := after(c.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("WebSocket ping failed", "error", err)
				_ = c.Close(domain.CloseNormal, "ping failed")
				return
			}
		case <-c.done:
			c.flush()
			c.mu.Lock()
			code, reason := c.closeCode, c.closeReason
			c.mu.Unlock()
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, after(c.opts.WriteTimeout))
			return
		}
	}
}

// write puts one frame on the wire and reports the outcome to its sender.
// Frames withdrawn by their sender are skipped.
func (c *Channel) write(frame *outboundFrame) error {
	if !frame.state.CompareAndSwap(framePending, frameWriting) {
		return nil
	}
	_ = c.conn.SetWriteDeadline(after(c.opts.WriteTimeout))
	err := c.conn.WriteMessage(websocket.TextMessage, frame.payload)
	frame.result <- err
	return err
}

// flush writes what is still buffered, so a final error frame precedes the close frame.
func (c *Channel) flush() {
	for {
		select {
		case frame := <-c.outbound:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ReadLoop hands every inbound message to handle until the peer goes away
// or stays silent longer than the idle timeout. Pongs count as activity.
func (c *Channel) ReadLoop(handle func(data []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(after(c.opts.IdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(after(c.opts.IdleTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			switch {
			case stderrors.As(err, &netErr) && netErr.Timeout():
				_ = c.Close(domain.CloseIdleTimeout, "idle timeout")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				_ = c.Close(domain.CloseNormal, "")
			default:
				_ = c.Close(domain.CloseNormal, "read failed")
			}
			return err
		}
		_ = c.conn.SetReadDeadline(after(c.opts.IdleTimeout))
		handle(data)
	}
}

func (c *Channel) pingInterval() time.Duration {
	interval := c.opts.IdleTimeout * 9 / 10
	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}

// after returns the deadline d from now, or no deadline when d is not set.
func after(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
