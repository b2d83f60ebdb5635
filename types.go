package forumchat

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ============================================================================
// Chat Types
// ============================================================================

// Message is a single direct message between two users.
type Message struct {
	From      string    `json:"from" validate:"required"`
	To        string    `json:"to" validate:"required,nefield=From"`
	Content   string    `json:"content" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// Peer returns the conversation key of m as seen by self, or "" when self
// is neither sender nor recipient.
func (m Message) Peer(self string) string {
	switch self {
	case m.From:
		return m.To
	case m.To:
		return m.From
	}
	return ""
}

// messageKey identifies a message for de-duplication.
type messageKey struct {
	from    string
	to      string
	unixNS  int64
	content string
}

func (m Message) key() messageKey {
	return messageKey{from: m.From, to: m.To, unixNS: m.Timestamp.UnixNano(), content: m.Content}
}

// RosterEntry is one user in the online list.
type RosterEntry struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// ============================================================================
// REST Types
// ============================================================================

// NotificationRequest is the body of POST /notification. A nil Unread asks the
// server for the current count without changing it.
type NotificationRequest struct {
	Receiver string `json:"receiver_nickname" validate:"required"`
	Sender   string `json:"sender_nickname" validate:"required"`
	Unread   *int   `json:"unread_messages,omitempty" validate:"omitempty,gte=0"`
}

// NotificationResult carries the authoritative unread count for a sender.
type NotificationResult struct {
	Sender string `json:"sender_nickname"`
	Unread int    `json:"unread_messages"`
}

// LoggedResult is returned by GET /logged and POST /login.
type LoggedResult struct {
	Username string `json:"username"`
}

// LoginOptions are the credentials accepted by POST /login.
type LoginOptions struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Unread returns a pointer to n, for use in NotificationRequest.
func Unread(n int) *int {
	return &n
}

// ============================================================================
// Validation
// ============================================================================

var validate = validator.New()

// validateStruct reports the first failing field of v.
func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			first := vErrs[0]
			return fmt.Errorf("%w: field %s failed rule %s", ErrInvalidInput, first.Field(), first.Tag())
		}
		return err
	}
	return nil
}
