// Package protocol defines the frames exchanged over the duplex channel.
// Frames are decoded once at the boundary into one of the variants below
// and then matched with a type switch.
package protocol

import (
	"encoding/json"
	"fmt"
	"pinger/domain"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeClientList  Type = "clientlist"
	TypePing        Type = "ping"
	TypeQueuedPing  Type = "queued_ping"
	TypePong        Type = "pong"
	TypeError       Type = "error"
	TypeHeartbeat   Type = "heartbeat"
	TypePingRequest Type = "ping_request"
	TypePingResult  Type = "ping_result"
)

// KeepaliveText is the raw text keepalive some clients send instead of a JSON frame.
const (
	KeepaliveText = "ping"
	KeepaliveEcho = "pong"
)

var ErrUnknownFrame = fmt.Errorf("unknown frame type")

type Frame interface {
	FrameType() Type
}

// ClientList is pushed to every channel on presence change.
type ClientList struct {
	Clients []domain.Identity
}

// Ping notifies the recipient that From pinged it while it was online.
type Ping struct {
	ID   uuid.UUID
	From domain.Identity
	To   domain.Identity
	At   time.Time
}

// QueuedPing replays a ping received while the recipient was offline.
type QueuedPing struct {
	ID   uuid.UUID
	From domain.Identity
	To   domain.Identity
	At   time.Time
}

type Pong struct{}

type Error struct {
	Message string
}

type Heartbeat struct{}

// PingRequest asks the server to ping To on behalf of the channel owner.
type PingRequest struct {
	To domain.Identity
}

type PingResult struct {
	Result       domain.DeliveryStatus
	TargetOnline bool
}

func (ClientList) FrameType() Type  { return TypeClientList }
func (Ping) FrameType() Type        { return TypePing }
func (QueuedPing) FrameType() Type  { return TypeQueuedPing }
func (Pong) FrameType() Type        { return TypePong }
func (Error) FrameType() Type       { return TypeError }
func (Heartbeat) FrameType() Type   { return TypeHeartbeat }
func (PingRequest) FrameType() Type { return TypePingRequest }
func (PingResult) FrameType() Type  { return TypePingResult }

// wireFrame is the JSON shape shared by every variant.
type wireFrame struct {
	Type         Type                  `json:"type"`
	Clients      *[]domain.Identity    `json:"clients,omitempty"`
	ID           string                `json:"id,omitempty"`
	From         *domain.Identity      `json:"from,omitempty"`
	To           *domain.Identity      `json:"to,omitempty"`
	Ts           *float64              `json:"ts,omitempty"`
	Message      string                `json:"message,omitempty"`
	Result       domain.DeliveryStatus `json:"result,omitempty"`
	TargetOnline *bool                 `json:"target_online,omitempty"`
}

func Encode(frame Frame) ([]byte, error) {
	var w wireFrame
	switch f := frame.(type) {
	case ClientList:
		clients := f.Clients
		if clients == nil {
			clients = []domain.Identity{}
		}
		w = wireFrame{Type: TypeClientList, Clients: &clients}
	case Ping:
		w = pingWire(TypePing, f.ID, f.From, f.To, f.At)
	case QueuedPing:
		w = pingWire(TypeQueuedPing, f.ID, f.From, f.To, f.At)
	case Pong:
		w = wireFrame{Type: TypePong}
	case Error:
		w = wireFrame{Type: TypeError, Message: f.Message}
	case Heartbeat:
		w = wireFrame{Type: TypeHeartbeat}
	case PingRequest:
		to := f.To
		w = wireFrame{Type: TypePingRequest, To: &to}
	case PingResult:
		online := f.TargetOnline
		w = wireFrame{Type: TypePingResult, Result: f.Result, TargetOnline: &online}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownFrame, frame)
	}
	return json.Marshal(w)
}

// MustEncode is reserved for frames built by the server itself, which always encode.
func MustEncode(frame Frame) []byte {
	b, err := Encode(frame)
	if err != nil {
		panic(err)
	}
	return b
}

func Decode(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch w.Type {
	case TypeClientList:
		var clients []domain.Identity
		if w.Clients != nil {
			clients = *w.Clients
		}
		return ClientList{Clients: clients}, nil
	case TypePing, TypeQueuedPing:
		id, from, to, at, err := pingFields(w)
		if err != nil {
			return nil, err
		}
		if w.Type == TypePing {
			return Ping{ID: id, From: from, To: to, At: at}, nil
		}
		return QueuedPing{ID: id, From: from, To: to, At: at}, nil
	case TypePong:
		return Pong{}, nil
	case TypeError:
		return Error{Message: w.Message}, nil
	case TypeHeartbeat:
		return Heartbeat{}, nil
	case TypePingRequest:
		if w.To == nil {
			return nil, fmt.Errorf("decode %s: missing target", w.Type)
		}
		return PingRequest{To: *w.To}, nil
	case TypePingResult:
		online := false
		if w.TargetOnline != nil {
			online = *w.TargetOnline
		}
		return PingResult{Result: w.Result, TargetOnline: online}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, w.Type)
	}
}

// IsKeepalive reports whether a raw text message is the legacy keepalive.
func IsKeepalive(data []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(data)), KeepaliveText)
}

func pingWire(t Type, id uuid.UUID, from, to domain.Identity, at time.Time) wireFrame {
	ts := toEpochSeconds(at)
	return wireFrame{Type: t, ID: id.String(), From: &from, To: &to, Ts: &ts}
}

func pingFields(w wireFrame) (uuid.UUID, domain.Identity, domain.Identity, time.Time, error) {
	var (
		id       uuid.UUID
		from, to domain.Identity
		at       time.Time
	)
	if w.From == nil {
		return id, from, to, at, fmt.Errorf("decode %s: missing sender", w.Type)
	}
	from = *w.From
	if w.To != nil {
		to = *w.To
	}
	if w.ID != "" {
		parsed, err := uuid.Parse(w.ID)
		if err != nil {
			return id, from, to, at, fmt.Errorf("decode %s: %w", w.Type, err)
		}
		id = parsed
	}
	if w.Ts != nil {
		at = fromEpochSeconds(*w.Ts)
	}
	return id, from, to, at, nil
}

// Timestamps travel as fractional epoch seconds, microsecond precision.
func toEpochSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromEpochSeconds(ts float64) time.Time {
	return time.UnixMicro(int64(ts*1e6 + 0.5)).UTC()
}
