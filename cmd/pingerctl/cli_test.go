package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"pinger/domain"
	"pinger/protocol"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--colours=false"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-123", "expires_in": 3600, "session_id": "s1"})
	})
	mux.HandleFunc("POST /ping", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid token"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"result":"queued","target_online":false}`))
	})
	mux.HandleFunc("GET /clients", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"username":"alice","unique_id":"uid-alice"}]`))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","connected_users":2,"queued_pings":5,"active_sessions":3}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginPrintsToken(t *testing.T) {
	req := require.New(t)
	srv := fakeServer(t)

	stdout, err := executeCLI(t, "--addr", srv.URL, "login", "--username", "alice", "--unique-id", "uid-alice")

	req.NoError(err)
	req.Equal("tok-123\n", stdout)
}

func TestLoginRequiresUniqueID(t *testing.T) {
	req := require.New(t)

	_, err := executeCLI(t, "login", "--username", "alice")

	req.Error(err)
	req.Contains(err.Error(), `"unique-id"`)
}

func TestPing(t *testing.T) {
	req := require.New(t)
	srv := fakeServer(t)

	stdout, err := executeCLI(t, "--addr", srv.URL, "ping", "--token", "tok-123", "--to-username", "bob", "--to-unique-id", "uid-bob")
	req.NoError(err)
	req.Contains(stdout, "queued bob#uid-bob (online=false)")

	_, err = executeCLI(t, "--addr", srv.URL, "ping", "--token", "wrong", "--to-unique-id", "uid-bob")
	req.ErrorContains(err, "invalid token")
}

func TestClientsAndHealth(t *testing.T) {
	req := require.New(t)
	srv := fakeServer(t)

	stdout, err := executeCLI(t, "--addr", srv.URL, "clients")
	req.NoError(err)
	req.Contains(stdout, "uid-alice")

	stdout, err = executeCLI(t, "--addr", srv.URL, "--json", "health")
	req.NoError(err)
	req.True(json.Valid([]byte(stdout)))
	req.Contains(stdout, `"queued_pings": 5`)

	stdout, err = executeCLI(t, "--addr", srv.URL, "health")
	req.NoError(err)
	req.Contains(stdout, "connected users")
}

func TestDescribe(t *testing.T) {
	req := require.New(t)
	a := &app{config: Config{Colours: false}}
	alice := domain.Identity{Username: "alice", UniqueID: "uid-alice"}
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.Local)

	req.Equal("online alice#uid-alice", a.describe(protocol.ClientList{Clients: []domain.Identity{alice}}))
	req.Equal("queued ping from alice#uid-alice at 10:00:00", a.describe(protocol.QueuedPing{From: alice, At: at}))
	req.Equal("error boom", a.describe(protocol.Error{Message: "boom"}))
	req.Equal("pong", a.describe(protocol.Pong{}))
}
