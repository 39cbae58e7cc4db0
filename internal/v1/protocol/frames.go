// Package protocol defines the JSON frames exchanged over a socket: the
// inbound tagged union clients send and the envelope every outbound frame is
// wrapped in.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// ServerSender is the from value on server-originated frames.
const ServerSender = "server"

// DefaultMaxMessageBytes caps inbound frame size.
const DefaultMaxMessageBytes = 65536

// Inbound frame types. Aliases are accepted on input and normalized with
// Canonical before dispatch.
const (
	TypeJoin         = "join"
	TypeJoinRoom     = "join-room"
	TypeLeave        = "leave"
	TypeGetPeers     = "get-peers"
	TypeGetDoc       = "get-doc"
	TypeRequestDoc   = "request-doc"
	TypeUpdate       = "update"
	TypeCursor       = "cursor"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeICE          = "ice"
)

// Outbound frame types.
const (
	TypeConnected      = "connected"
	TypeJoined         = "joined"
	TypeLeft           = "left"
	TypeDoc            = "doc"
	TypeDocUpdated     = "doc-updated"
	TypeUpdateRejected = "update-rejected"
	TypePeersUpdated   = "peers-updated"
	TypeError          = "error"
)

// Canonical maps inbound aliases onto the type the dispatcher and outbound
// frames use.
func Canonical(frameType string) string {
	switch frameType {
	case TypeJoinRoom:
		return TypeJoin
	case TypeRequestDoc:
		return TypeGetDoc
	case TypeICE:
		return TypeICECandidate
	default:
		return frameType
	}
}

// Inbound is a decoded client frame. Fields not used by a given type are
// simply left empty; per-type requirements are checked by Validate.
type Inbound struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId,omitempty"`
	To          string          `json:"to,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	Text        json.RawMessage `json:"text,omitempty"`
	BaseVersion *int            `json:"baseVersion,omitempty"`
	SDP         json.RawMessage `json:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame. Malformed JSON yields invalid_json; valid JSON
// that does not fit the envelope (wrong field types, no type tag) yields
// invalid_message with the schema violation in Details.
func Decode(data []byte) (*Inbound, error) {
	if !json.Valid(data) {
		return nil, &DecodeError{Reason: ErrInvalidJSON, Details: "frame is not valid JSON"}
	}

	var f Inbound
	if err := json.Unmarshal(data, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Field == "" {
				return nil, &DecodeError{Reason: ErrInvalidMessage, Details: "frame must be a JSON object"}
			}
			return nil, &DecodeError{Reason: ErrInvalidMessage, Details: fmt.Sprintf("field %q must be a %s", typeErr.Field, typeErr.Type)}
		}
		return nil, &DecodeError{Reason: ErrInvalidMessage, Details: "frame does not match any recognized shape"}
	}

	if f.Type == "" {
		return nil, &DecodeError{Reason: ErrInvalidMessage, Details: "missing type field"}
	}

	return &f, nil
}

// Validate checks the per-type requirements the envelope decoder cannot
// express. Joins are not checked here: a join without a room has its own
// error reason, raised by the dispatcher.
func (f *Inbound) Validate() error {
	switch Canonical(f.Type) {
	case TypeUpdate:
		if len(f.Text) == 0 && len(f.Payload) == 0 {
			return &DecodeError{Reason: ErrInvalidMessage, Details: "update requires text"}
		}
	}
	return nil
}

// TextString returns the update's replacement text: the value itself for a
// JSON string, the compact JSON encoding for anything else. The text field
// wins over payload when both are present.
func (f *Inbound) TextString() string {
	raw := f.Text
	if len(raw) == 0 {
		raw = f.Payload
	}
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// RelayPayload nests a signaling frame's body under the outbound payload.
// An explicit payload object is the base; top-level sdp and candidate
// fields are folded in beside it.
func (f *Inbound) RelayPayload() any {
	base := map[string]json.RawMessage{}
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &base); err != nil {
			// non-object payloads pass through untouched when there is
			// nothing to fold in beside them
			if len(f.SDP) == 0 && len(f.Candidate) == 0 {
				return f.Payload
			}
			base = map[string]json.RawMessage{"payload": f.Payload}
		}
	}
	if len(f.SDP) > 0 {
		base["sdp"] = f.SDP
	}
	if len(f.Candidate) > 0 {
		base["candidate"] = f.Candidate
	}
	return base
}

// Outbound is the envelope every server-to-client frame travels in. From is
// "server" for server-originated frames and the sender's identity for
// relayed ones.
type Outbound struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// NewOutbound stamps a frame with the current time in milliseconds since
// epoch.
func NewOutbound(frameType, from string, payload any) *Outbound {
	return &Outbound{
		Type:      frameType,
		From:      from,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode marshals the frame for the wire.
func (o *Outbound) Encode() ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding %s frame: %w", o.Type, err)
	}
	return data, nil
}

// --- Outbound payload shapes ---

// ConnectedPayload greets a freshly registered connection. Peers previews
// the room named in the upgrade request's roomId hint; the client is not a
// member yet.
type ConnectedPayload struct {
	ClientID string           `json:"clientId"`
	RoomID   string           `json:"roomId,omitempty"`
	Peers    []types.PeerInfo `json:"peers"`
	Total    int              `json:"total"`
}

// JoinedPayload confirms a join.
type JoinedPayload struct {
	RoomID string `json:"roomId"`
}

// LeftPayload confirms a leave.
type LeftPayload struct {
	RoomID string `json:"roomId"`
}

// DocPayload is the current shared document.
type DocPayload struct {
	Version int    `json:"version"`
	Text    string `json:"text"`
}

// DocUpdatedPayload announces an accepted update to every room member.
type DocUpdatedPayload struct {
	Version int    `json:"version"`
	Text    string `json:"text"`
	Author  string `json:"author"`
}

// UpdateRejectedPayload tells the sender its baseVersion is stale, with the
// state to rebase onto.
type UpdateRejectedPayload struct {
	CurrentVersion int    `json:"currentVersion"`
	Text           string `json:"text"`
}

// PeersUpdatedPayload is the presence snapshot: peers includes the
// recipient, count does not.
type PeersUpdatedPayload struct {
	Peers []types.PeerInfo `json:"peers"`
	Total int              `json:"total"`
	Count int              `json:"count"`
}
