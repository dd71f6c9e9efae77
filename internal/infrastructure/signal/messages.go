package signal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"novaled/internal/core/domain"
)

// Client to server.
const (
	TypeStartLive    = "start_live"
	TypeStopLive     = "stop_live"
	TypeLogout       = "logout"
	TypeICECandidate = "ice_candidate"
)

// Server to client.
const (
	TypeStatus     = "status"
	TypeAnswer     = "answer"
	TypeOwnerPopup = "owner_popup"
	TypeFeed       = "feed"
	TypeUsers      = "users"
	TypeError      = "error"
)

// Message is the envelope for every WebSocket frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartLivePayload carries the broadcaster's offer. An empty SDP means the
// browser could not open its camera or microphone.
type StartLivePayload struct {
	SDP   string `json:"sdp"`
	Video bool   `json:"video"`
	Audio bool   `json:"audio"`
}

type AnswerPayload struct {
	SDP string `json:"sdp"`
}

type ICECandidatePayload struct {
	Candidate string `json:"candidate"`
}

// FeedPayload is the whole feed, newest first. It is resent after every
// change to the posts collection.
type FeedPayload struct {
	Posts []*domain.Post `json:"posts"`
}

// UsersPayload is the user list shown in the owner console, most recently
// registered first. Only owners receive it.
type UsersPayload struct {
	Users []UserEntry `json:"users"`
}

type UserEntry struct {
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	Avatar    string        `json:"avatar"`
	CreatedAt time.Time     `json:"createdAt"`
	Banned    bool          `json:"banned"`
	PostCount int           `json:"postCount"`
}

func newUsersPayload(users []*domain.User) UsersPayload {
	out := UsersPayload{Users: make([]UserEntry, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, UserEntry{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Avatar:    u.Avatar,
			CreatedAt: u.CreatedAt,
			Banned:    u.Banned,
			PostCount: u.PostCount,
		})
	}
	return out
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMessage(msgType string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: raw}, nil
}

func decodePayload[T any](msg Message) (T, error) {
	var v T
	if len(msg.Payload) == 0 {
		return v, fmt.Errorf("%s requires a payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	return v, nil
}

// validateSDP checks the minimal session description fields.
func validateSDP(sdp string) error {
	if !strings.HasPrefix(sdp, "v=") {
		return fmt.Errorf("invalid SDP format: must start with 'v='")
	}
	for _, field := range []string{"o=", "s=", "t="} {
		if !strings.Contains(sdp, field) {
			return fmt.Errorf("invalid SDP format: missing required field '%s'", field)
		}
	}
	return nil
}
