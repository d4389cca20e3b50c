package protocol

import (
	"encoding/json"
	"pinger/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncode_ClientList_EmptyIsArray(t *testing.T) {
	req := require.New(t)

	// When an empty client list is encoded
	b, err := Encode(ClientList{})
	req.NoError(err)

	// Then clients is an empty JSON array, never null
	req.JSONEq(`{"type":"clientlist","clients":[]}`, string(b))
}

func TestEncode_Ping_WireShape(t *testing.T) {
	req := require.New(t)
	alice := domain.Identity{Username: "alice", UniqueID: "uid1"}
	bob := domain.Identity{Username: "bob", UniqueID: "uid2"}
	id := uuid.New()
	at := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)

	b, err := Encode(Ping{ID: id, From: bob, To: alice, At: at})
	req.NoError(err)

	var raw map[string]any
	req.NoError(json.Unmarshal(b, &raw))
	req.Equal("ping", raw["type"])
	req.Equal(map[string]any{"username": "bob", "unique_id": "uid2"}, raw["from"])
	req.Equal(id.String(), raw["id"])
	req.InDelta(float64(at.UnixMicro())/1e6, raw["ts"], 1e-6)
}

func TestDecode_PingKeepsSenderAndTime(t *testing.T) {
	req := require.New(t)
	bob := domain.Identity{Username: "bob", UniqueID: "uid2"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	id := uuid.New()

	frame, err := Decode(MustEncode(QueuedPing{ID: id, From: bob, At: at}))
	req.NoError(err)

	queued, ok := frame.(QueuedPing)
	req.True(ok)
	req.Equal(bob, queued.From)
	req.Equal(id, queued.ID)
	req.True(at.Equal(queued.At))
}

func TestDecode_ClientFrames(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Frame
		wantErr bool
	}{
		{"heartbeat", `{"type":"heartbeat"}`, Heartbeat{}, false},
		{"ping request", `{"type":"ping_request","to":{"username":"alice","unique_id":"uid1"}}`,
			PingRequest{To: domain.Identity{Username: "alice", UniqueID: "uid1"}}, false},
		{"ping request without target", `{"type":"ping_request"}`, nil, true},
		{"ping without sender", `{"type":"ping"}`, nil, true},
		{"unknown type", `{"type":"dance"}`, nil, true},
		{"not json", `hello`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			frame, err := Decode([]byte(tt.input))
			if tt.wantErr {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, frame)
		})
	}
}

func TestIsKeepalive(t *testing.T) {
	req := require.New(t)
	req.True(IsKeepalive([]byte("ping")))
	req.True(IsKeepalive([]byte(" PING\n")))
	req.False(IsKeepalive([]byte(`{"type":"ping"}`)))
}
