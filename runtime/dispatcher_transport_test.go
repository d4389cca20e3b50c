package runtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"pinger/domain"
	"pinger/infrastructure/ws"
	"pinger/protocol"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// websocketPair returns a server side ws.Channel with its writer running, its raw
// connection and the dialed client.
func websocketPair(t *testing.T) (*ws.Channel, *websocket.Conn, *websocket.Conn) {
	t.Helper()
	type accepted struct {
		channel *ws.Channel
		conn    *websocket.Conn
	}
	ready := make(chan accepted, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		channel := ws.NewChannel(logs.GetLoggerFromLevel(slog.LevelDebug), conn,
			ws.Options{BufferSize: 8, WriteTimeout: time.Second, IdleTimeout: time.Minute})
		go channel.WritePump()
		ready <- accepted{channel: channel, conn: conn}
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case a := <-ready:
		return a.channel, a.conn, client
	case <-time.After(2 * time.Second):
		require.FailNow(t, "websocket not accepted")
		return nil, nil, nil
	}
}

func TestDispatcher_Ping_OverWebSocket(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 0)
	ctx := context.Background()

	// Given bob connected over a real websocket
	channel, _, client := websocketPair(t)
	_, err := f.dispatcher.Connect(ctx, f.login(t, bob).Token, channel)
	req.NoError(err)

	// When alice pings him
	result, err := f.dispatcher.Ping(ctx, f.login(t, alice), alice, bob)

	// Then the ping is on the wire before the call returns
	req.NoError(err)
	req.Equal(domain.Delivered, result.Status)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	req.NoError(err)
	frame, err := protocol.Decode(data)
	req.NoError(err)
	ping, ok := frame.(protocol.Ping)
	req.True(ok)
	req.Equal(result.PingID, ping.ID)
}

func TestDispatcher_Ping_DeadTransportFallsBackToQueue(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 0)
	ctx := context.Background()

	// Given bob registered on a websocket whose transport then dies
	channel, serverConn, _ := websocketPair(t)
	_, err := f.dispatcher.Connect(ctx, f.login(t, bob).Token, channel)
	req.NoError(err)
	req.NoError(serverConn.NetConn().Close())

	// When alice pings him before the disconnect is noticed
	result, err := f.dispatcher.Ping(ctx, f.login(t, alice), alice, bob)

	// Then the failed write is not reported as a delivery
	req.NoError(err)
	req.Equal(domain.Queued, result.Status)
	req.False(result.TargetOnline)
	req.Zero(f.monitoring.GetLatest().PingsDelivered)

	// Then the ping waits for bob in the queue
	count, err := f.queue.Count(ctx)
	req.NoError(err)
	req.Equal(1, count)

	// Then bob gets it once he reconnects
	_, again := f.connect(t, bob)
	frames := again.Frames(t)
	req.Len(frames, 1)
	queued, ok := frames[0].(protocol.QueuedPing)
	req.True(ok)
	req.Equal(result.PingID, queued.ID)
}
