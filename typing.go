package forumchat

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FrameSender queues an outbound frame without blocking.
type FrameSender interface {
	Send(Frame) error
}

// TypingConfig configures a TypingMachine.
type TypingConfig struct {
	User string
	// Debounce is how long local typing lasts after the last keystroke.
	Debounce time.Duration
	// RemoteTimeout hides a peer's indicator if no stop signal arrives.
	RemoteTimeout time.Duration
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

func (c *TypingConfig) defaults() {
	if c.Debounce == 0 {
		c.Debounce = 1000 * time.Millisecond
	}
	if c.RemoteTimeout == 0 {
		c.RemoteTimeout = 3000 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	c.Logger = loggerOrDefault(c.Logger)
}

type localTyping struct {
	typing       bool
	lastActivity time.Time
	timer        clockwork.Timer
	gen          uint64
}

type remoteTyping struct {
	typing bool
	timer  clockwork.Timer
	gen    uint64
}

// ============================================================================
// TypingMachine
// ============================================================================

// TypingMachine tracks the local user's typing state per peer and the typing
// overlay shown for remote peers. Each local Idle/Typing transition sends
// exactly one TypingSignal.
type TypingMachine struct {
	sender FrameSender
	cfg    TypingConfig

	// sendMu orders local transitions with their signals on the wire. It is
	// taken before mu.
	sendMu sync.Mutex

	mu       sync.Mutex
	local    map[string]*localTyping
	remote   map[string]*remoteTyping
	onRemote func(from string, typing bool)
}

// NewTypingMachine creates an idle machine sending through sender.
func NewTypingMachine(sender FrameSender, config *TypingConfig) *TypingMachine {
	cfg := TypingConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	return &TypingMachine{
		sender: sender,
		cfg:    cfg,
		local:  make(map[string]*localTyping),
		remote: make(map[string]*remoteTyping),
	}
}

// OnRemoteChange sets the callback for remote overlay changes.
func (t *TypingMachine) OnRemoteChange(h func(from string, typing bool)) {
	t.mu.Lock()
	t.onRemote = h
	t.mu.Unlock()
}

// Input records the current contents of the compose box for peer.
func (t *TypingMachine) Input(peer, text string) {
	if peer == "" {
		return
	}
	empty := strings.TrimSpace(text) == ""
	t.sendMu.Lock()
	defer t.sendMu.Unlock()


	t.mu.Lock()
	st, ok := t.local[peer]
	if !ok {
		st = &localTyping{}
		t.local[peer] = st
	}

	if empty {
		if !st.typing {
			t.mu.Unlock()
			return
		}
		t.idleLocked(st)
		t.mu.Unlock()
		t.signal(peer, false, "input cleared")
		return
	}

	started := !st.typing
	st.typing = true
	st.lastActivity = t.cfg.Clock.Now()
	st.gen++
	gen := st.gen
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = t.cfg.Clock.AfterFunc(t.cfg.Debounce, func() { t.expire(peer, gen) })
	t.mu.Unlock()

	if started {
		t.signal(peer, true, "input")
	}
}

// Stop returns peer to Idle, sending a stop signal if it was typing.
func (t *TypingMachine) Stop(peer, reason string) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	st, ok := t.local[peer]
	if !ok || !st.typing {
		t.mu.Unlock()
		return
	}
	t.idleLocked(st)
	t.mu.Unlock()

	t.signal(peer, false, reason)
}

// StopAll returns every peer to Idle.
func (t *TypingMachine) StopAll(reason string) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	var peers []string
	for peer, st := range t.local {
		if st.typing {
			t.idleLocked(st)
			peers = append(peers, peer)
		}
	}
	t.mu.Unlock()

	for _, peer := range peers {
		t.signal(peer, false, reason)
	}
}

// IsTyping reports whether the local user is typing to peer.
func (t *TypingMachine) IsTyping(peer string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.local[peer]
	return ok && st.typing
}

// LastActivity returns the time of the last keystroke sent to peer.
func (t *TypingMachine) LastActivity(peer string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.local[peer]; ok {
		return st.lastActivity
	}
	return time.Time{}
}

// idleLocked clears the typing flag and invalidates the pending timer.
func (t *TypingMachine) idleLocked(st *localTyping) {
	st.typing = false
	st.gen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}

func (t *TypingMachine) expire(peer string, gen uint64) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	st, ok := t.local[peer]
	if !ok || st.gen != gen || !st.typing {
		t.mu.Unlock()
		return
	}
	st.typing = false
	st.timer = nil
	t.mu.Unlock()

	t.signal(peer, false, "idle")
}

func (t *TypingMachine) signal(peer string, typing bool, reason string) {
	err := t.sender.Send(TypingSignal{From: t.cfg.User, To: peer, IsTyping: typing})
	if err != nil {
		t.cfg.Logger.Warn("typing signal not sent", "peer", peer, "typing", typing, "reason", reason, "err", err)
		return
	}
	t.cfg.Logger.Debug("typing signal", "peer", peer, "typing", typing, "reason", reason)
}

// ============================================================================
// Remote overlay
// ============================================================================

// Remote applies a typing signal received from another user.
func (t *TypingMachine) Remote(sig TypingSignal) {
	if sig.From == "" || (sig.To != "" && sig.To != t.cfg.User) {
		return
	}

	t.mu.Lock()
	r, ok := t.remote[sig.From]
	if !ok {
		r = &remoteTyping{}
		t.remote[sig.From] = r
	}
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.typing = sig.IsTyping
	if sig.IsTyping {
		gen := r.gen
		from := sig.From
		r.timer = t.cfg.Clock.AfterFunc(t.cfg.RemoteTimeout, func() { t.expireRemote(from, gen) })
	}
	h := t.onRemote
	t.mu.Unlock()

	if h != nil {
		h(sig.From, sig.IsTyping)
	}
}

// ClearRemote hides from's typing overlay.
func (t *TypingMachine) ClearRemote(from string) {
	t.mu.Lock()
	r, ok := t.remote[from]
	if !ok || !r.typing {
		t.mu.Unlock()
		return
	}
	r.typing = false
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	h := t.onRemote
	t.mu.Unlock()

	if h != nil {
		h(from, false)
	}
}

// RemoteTyping reports whether from is shown as typing.
func (t *TypingMachine) RemoteTyping(from string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.remote[from]
	return ok && r.typing
}

func (t *TypingMachine) expireRemote(from string, gen uint64) {
	t.mu.Lock()
	r, ok := t.remote[from]
	if !ok || r.gen != gen || !r.typing {
		t.mu.Unlock()
		return
	}
	r.typing = false
	r.timer = nil
	h := t.onRemote
	t.mu.Unlock()

	if h != nil {
		h(from, false)
	}
}

// Reset stops every timer and forgets all state without sending signals.
func (t *TypingMachine) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.local {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	for _, r := range t.remote {
		if r.timer != nil {
			r.timer.Stop()
		}
	}
	t.local = make(map[string]*localTyping)
	t.remote = make(map[string]*remoteTyping)
}
