package forumchat

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// FrameKind discriminates the variants carried on the channel.
type FrameKind string

const (
	KindRosterSnapshot FrameKind = "user_list"
	KindTypingSignal   FrameKind = "typing"
	KindChatMessage    FrameKind = "message"
)

// Frame is one decoded channel event. The set of implementations is closed:
// RosterSnapshot, TypingSignal and ChatMessage.
type Frame interface {
	Kind() FrameKind
	isFrame()
}

// RosterSnapshot lists every user currently connected.
type RosterSnapshot struct {
	Users []string
}

// TypingSignal reports that From started or stopped typing to To.
type TypingSignal struct {
	From     string
	To       string
	IsTyping bool
}

// ChatMessage carries a live message.
type ChatMessage struct {
	Message
}

func (RosterSnapshot) Kind() FrameKind { return KindRosterSnapshot }
func (TypingSignal) Kind() FrameKind   { return KindTypingSignal }
func (ChatMessage) Kind() FrameKind    { return KindChatMessage }

func (RosterSnapshot) isFrame() {}
func (TypingSignal) isFrame()   {}
func (ChatMessage) isFrame()    {}

// wireFrame is the union of every field that can appear on the wire. Plain
// messages carry no type field.
type wireFrame struct {
	Type      string     `json:"type,omitempty"`
	Users     []string   `json:"users,omitempty"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	IsTyping  *bool      `json:"isTyping,omitempty"`
	Content   string     `json:"content,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// DecodeFrame parses one inbound channel payload.
func DecodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch FrameKind(w.Type) {
	case KindRosterSnapshot:
		return RosterSnapshot{Users: w.Users}, nil
	case KindTypingSignal:
		sig := TypingSignal{From: w.From, To: w.To}
		if w.IsTyping != nil {
			sig.IsTyping = *w.IsTyping
		}
		return sig, nil
	case "":
		if w.From == "" || w.To == "" {
			return nil, fmt.Errorf("decode frame: message without sender or recipient")
		}
		msg := Message{From: w.From, To: w.To, Content: w.Content}
		if w.Timestamp != nil {
			msg.Timestamp = *w.Timestamp
		}
		return ChatMessage{Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, w.Type)
	}
}

// EncodeFrame serialises f in the shape the server expects: typing signals as
// typed objects, messages as bare objects.
func EncodeFrame(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case RosterSnapshot:
		users := v.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(struct {
			Type  string   `json:"type"`
			Users []string `json:"users"`
		}{string(KindRosterSnapshot), users})
	case TypingSignal:
		return json.Marshal(struct {
			Type     string `json:"type"`
			From     string `json:"from"`
			To       string `json:"to"`
			IsTyping bool   `json:"isTyping"`
		}{string(KindTypingSignal), v.From, v.To, v.IsTyping})
	case ChatMessage:
		return json.Marshal(v.Message)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownFrame, f)
	}
}
