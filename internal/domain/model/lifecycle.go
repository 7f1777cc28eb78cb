package model

import (
	"fmt"
	"time"

	"telegram-gpt-relay/internal/domain"
)

// ChatState is the lifecycle state of a user's conversation.
type ChatState string

const (
	NoActiveChat ChatState = "no_active_chat"
	ActiveChat   ChatState = "active_chat"
)

// ChatEvent drives lifecycle transitions.
type ChatEvent string

const (
	EventStart   ChatEvent = "start"
	EventEnd     ChatEvent = "end"
	EventMessage ChatEvent = "message"
	EventUsage   ChatEvent = "usage"
)

var transitions = map[ChatState]map[ChatEvent]ChatState{
	NoActiveChat: {
		EventStart: ActiveChat,
		EventEnd:   NoActiveChat,
	},
	ActiveChat: {
		EventEnd:     NoActiveChat,
		EventMessage: ActiveChat,
		EventUsage:   ActiveChat,
	},
}

// rejections names the error reported for an event that has no transition in a state.
var rejections = map[ChatState]map[ChatEvent]error{
	NoActiveChat: {
		EventMessage: domain.ErrNoActiveChat,
		EventUsage:   domain.ErrNoActiveChat,
	},
	ActiveChat: {
		EventStart: domain.ErrActiveChatExists,
	},
}

// Transition returns the state reached from `from` on `ev`.
func Transition(from ChatState, ev ChatEvent) (ChatState, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	if err, ok := rejections[from][ev]; ok {
		return from, err
	}
	return from, fmt.Errorf("%w: %s in %s", domain.ErrUnknownEvent, ev, from)
}

// ChatRecord is the persisted per-user lifecycle record.
// Session is non-nil exactly when State is ActiveChat.
type ChatRecord struct {
	UserID    int64        `json:"user_id"`
	State     ChatState    `json:"state"`
	Session   *ChatSession `json:"session,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewChatRecord returns the initial record of a user that never chatted.
func NewChatRecord(userID int64) *ChatRecord {
	return &ChatRecord{UserID: userID, State: NoActiveChat}
}

// SessionConfig carries what a start event needs to open a session.
type SessionConfig struct {
	Model        string
	SystemPrompt string
	Budget       int
}

// Apply runs a lifecycle event against the record, including the session side effects of
// start and end. Message and usage events only validate the state; the caller works on the
// session directly.
func (r *ChatRecord) Apply(ev ChatEvent, cfg SessionConfig) error {
	to, err := Transition(r.State, ev)
	if err != nil {
		return err
	}
	switch ev {
	case EventStart:
		r.Session = NewChatSession(r.UserID, cfg.Model, cfg.SystemPrompt, cfg.Budget)
	case EventEnd:
		if r.Session != nil {
			r.Session.End()
		}
		r.Session = nil
	}
	r.State = to
	r.UpdatedAt = time.Now()
	return nil
}

// Active reports whether the user currently has a session.
func (r *ChatRecord) Active() bool {
	return r.State == ActiveChat && r.Session != nil
}

// Clone deep-copies the record.
func (r *ChatRecord) Clone() *ChatRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Session = r.Session.Clone()
	return &cp
}
