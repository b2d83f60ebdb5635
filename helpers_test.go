package forumchat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func msgAt(from, to string, sec int) Message {
	return Message{From: from, To: to, Content: fmt.Sprintf("m%d", sec), Timestamp: at(sec)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// eventLog records calls across fakes in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) index(event string) int {
	for i, e := range l.all() {
		if e == event {
			return i
		}
	}
	return -1
}

func (l *eventLog) has(event string) bool { return l.index(event) >= 0 }

// ============================================================================
// Fake View
// ============================================================================

type recordingView struct {
	NopView
	log *eventLog

	mu      sync.Mutex
	scroll  int
	loading map[string]bool
	badges  map[string]int
	roster  []RosterEntry
}

func newRecordingView(log *eventLog) *recordingView {
	if log == nil {
		log = &eventLog{}
	}
	return &recordingView{
		log:     log,
		scroll:  1 << 20,
		loading: make(map[string]bool),
		badges:  make(map[string]int),
	}
}

func (v *recordingView) setScroll(px int) {
	v.mu.Lock()
	v.scroll = px
	v.mu.Unlock()
}

func (v *recordingView) ScrollOffset() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scroll
}

func (v *recordingView) isLoading(peer string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading[peer]
}

func (v *recordingView) badge(sender string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.badges[sender]
}

func (v *recordingView) ShowConversation(peer string) { v.log.add("show %s", peer) }
func (v *recordingView) HideConversation()            { v.log.add("hide") }
func (v *recordingView) LoggedOut()                   { v.log.add("logged-out") }

func (v *recordingView) RenderHistory(peer string, msgs []Message) {
	v.log.add("render %s %d", peer, len(msgs))
}

func (v *recordingView) AppendMessage(peer string, msg Message) {
	v.log.add("append %s %s", peer, msg.Content)
}

func (v *recordingView) PrependMessages(peer string, msgs []Message) {
	v.log.add("prepend %s %d", peer, len(msgs))
}

func (v *recordingView) SetLoading(peer string, loading bool) {
	v.mu.Lock()
	v.loading[peer] = loading
	v.mu.Unlock()
}

func (v *recordingView) ShowTyping(peer string, typing bool) {
	v.log.add("typing %s %t", peer, typing)
}

func (v *recordingView) ShowRosterTyping(peer string, typing bool) {
	v.log.add("roster-typing %s %t", peer, typing)
}

func (v *recordingView) SetRoster(entries []RosterEntry) {
	v.mu.Lock()
	v.roster = entries
	v.mu.Unlock()
	v.log.add("roster %d", len(entries))
}

func (v *recordingView) SetBadge(sender string, unread int) {
	v.mu.Lock()
	v.badges[sender] = unread
	v.mu.Unlock()
}

// ============================================================================
// Fake API
// ============================================================================

type fakeAPI struct {
	log *eventLog

	mu        sync.Mutex
	fetch     func(ctx context.Context, from, to string, offset int) ([]Message, error)
	fetches   []int
	counts    map[string]int
	notifyErr error
	loggedErr error
}

func newFakeAPI(log *eventLog) *fakeAPI {
	if log == nil {
		log = &eventLog{}
	}
	return &fakeAPI{log: log, counts: make(map[string]int)}
}

func (a *fakeAPI) FetchMessages(ctx context.Context, from, to string, offset int) ([]Message, error) {
	a.mu.Lock()
	a.fetches = append(a.fetches, offset)
	fetch := a.fetch
	a.mu.Unlock()
	a.log.add("fetch %s %d", to, offset)
	if fetch == nil {
		return []Message{}, nil
	}
	return fetch(ctx, from, to, offset)
}

func (a *fakeAPI) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fetches)
}

// ReportNotification behaves like the server: unread is added to the stored
// count, zero resets it, nil only reads it.
func (a *fakeAPI) ReportNotification(ctx context.Context, req *NotificationRequest) (*NotificationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if req.Unread != nil {
		a.log.add("notify %s %d", req.Sender, *req.Unread)
	}
	if a.notifyErr != nil {
		return nil, a.notifyErr
	}
	key := req.Receiver + "<-" + req.Sender
	if req.Unread != nil {
		if *req.Unread == 0 {
			a.counts[key] = 0
		} else {
			a.counts[key] += *req.Unread
		}
	}
	return &NotificationResult{Sender: req.Sender, Unread: a.counts[key]}, nil
}

func (a *fakeAPI) Logged(ctx context.Context) (*LoggedResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loggedErr != nil {
		return nil, a.loggedErr
	}
	return &LoggedResult{Username: "alice"}, nil
}

// ============================================================================
// Fake Transport
// ============================================================================

type fakeTransport struct {
	mu         sync.Mutex
	sent       []Frame
	handler    FrameHandler
	onState    []func(ChannelState)
	connectErr error
	connected  bool
}

func (f *fakeTransport) Send(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeTransport) Connect(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) OnFrame(h FrameHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeTransport) OnStateChange(h func(ChannelState)) {
	f.mu.Lock()
	f.onState = append(f.onState, h)
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) deliver(fr Frame) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(fr)
}

func (f *fakeTransport) frames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.sent...)
}

func (f *fakeTransport) typingSignals() []TypingSignal {
	var out []TypingSignal
	for _, fr := range f.frames() {
		if sig, ok := fr.(TypingSignal); ok {
			out = append(out, sig)
		}
	}
	return out
}

func (f *fakeTransport) chatMessages() []Message {
	var out []Message
	for _, fr := range f.frames() {
		if m, ok := fr.(ChatMessage); ok {
			out = append(out, m.Message)
		}
	}
	return out
}
