package runtime

import (
	"context"
	"pinger/errors"
	"pinger/protocol"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingChannel keeps every payload sent to it.
type recordingChannel struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
	code     int
	failWith error
}

func (c *recordingChannel) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	if c.closed {
		return errors.ErrChannelClosed
	}
	c.payloads = append(c.payloads, append([]byte(nil), payload...))
	return nil
}

func (c *recordingChannel) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	return nil
}

func (c *recordingChannel) Closed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code
}

func (c *recordingChannel) Frames(t *testing.T) []protocol.Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([]protocol.Frame, 0, len(c.payloads))
	for _, p := range c.payloads {
		f, err := protocol.Decode(p)
		require.NoError(t, err)
		frames = append(frames, f)
	}
	return frames
}
