package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	forumchat "github.com/RealTimeForum/forum/sdk/golang"
)

// terminalView prints session events as lines of text.
type terminalView struct {
	forumchat.NopView

	mu        sync.Mutex
	out       io.Writer
	loggedOut chan struct{}
	once      sync.Once
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out, loggedOut: make(chan struct{})}
}

func (v *terminalView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format+"\n", args...)
}

func (v *terminalView) printMessage(msg forumchat.Message) {
	v.printf("[%s] %s: %s", msg.Timestamp.Local().Format(time.TimeOnly), msg.From, msg.Content)
}

func (v *terminalView) ShowConversation(peer string) { v.printf("--- conversation with %s ---", peer) }
func (v *terminalView) HideConversation()            { v.printf("--- conversation closed ---") }

func (v *terminalView) RenderHistory(peer string, msgs []forumchat.Message) {
	if len(msgs) == 0 {
		v.printf("(no messages with %s yet)", peer)
	}
	for _, m := range msgs {
		v.printMessage(m)
	}
}

func (v *terminalView) AppendMessage(peer string, msg forumchat.Message) { v.printMessage(msg) }

func (v *terminalView) PrependMessages(peer string, msgs []forumchat.Message) {
	v.printf("--- %d older messages ---", len(msgs))
	for _, m := range msgs {
		v.printMessage(m)
	}
}

func (v *terminalView) SetLoading(peer string, loading bool) {
	if loading {
		v.printf("(loading older messages...)")
	}
}

func (v *terminalView) ShowTyping(peer string, typing bool) {
	if typing {
		v.printf("(%s is typing)", peer)
	}
}

func (v *terminalView) SetRoster(entries []forumchat.RosterEntry) {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Username
	}
	v.printf("online: %v", names)
}

func (v *terminalView) SetBadge(sender string, unread int) {
	if unread > 0 {
		v.printf("(%d unread from %s)", unread, sender)
	}
}

func (v *terminalView) SetConnectionState(state forumchat.ChannelState) {
	v.printf("(channel %s)", state)
}

func (v *terminalView) LoggedOut() {
	v.printf("Session expired. Run 'forumchat login' again.")
	v.once.Do(func() { close(v.loggedOut) })
}
