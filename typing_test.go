package forumchat

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestTyping(clock clockwork.Clock) (*TypingMachine, *fakeTransport) {
	tr := &fakeTransport{}
	tm := NewTypingMachine(tr, &TypingConfig{
		User:   "alice",
		Clock:  clock,
		Logger: discardLogger(),
	})
	return tm, tr
}

func signalStates(sigs []TypingSignal) []bool {
	out := make([]bool, len(sigs))
	for i, s := range sigs {
		out[i] = s.IsTyping
	}
	return out
}

// ============================================================================
// Local typing
// ============================================================================

func TestTypingBurst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm, tr := newTestTyping(clock)

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		tm.Input("bob", text)
		clock.Advance(100 * time.Millisecond)
	}
	if got := signalStates(tr.typingSignals()); len(got) != 1 || !got[0] {
		t.Fatalf("expected a single start signal, got %v", got)
	}
	if !tm.IsTyping("bob") {
		t.Fatal("expected typing")
	}

	clock.Advance(time.Second)
	waitFor(t, "stop signal", func() bool { return len(tr.typingSignals()) == 2 })

	sigs := tr.typingSignals()
	if sigs[1].IsTyping || sigs[1].To != "bob" || sigs[1].From != "alice" {
		t.Errorf("unexpected stop signal: %+v", sigs[1])
	}
	if tm.IsTyping("bob") {
		t.Error("expected idle after the debounce")
	}
}

func TestTypingDebounceResets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm, tr := newTestTyping(clock)

	tm.Input("bob", "h")
	clock.Advance(900 * time.Millisecond)
	tm.Input("bob", "hi")
	clock.Advance(900 * time.Millisecond)
	if !tm.IsTyping("bob") {
		t.Fatal("a keystroke must restart the debounce")
	}

	clock.Advance(100 * time.Millisecond)
	waitFor(t, "idle", func() bool { return !tm.IsTyping("bob") })
	if got := signalStates(tr.typingSignals()); len(got) != 2 {
		t.Errorf("expected start and stop only, got %v", got)
	}
}

func TestTypingStopTriggers(t *testing.T) {
	tests := []struct {
		name string
		stop func(tm *TypingMachine)
	}{
		{"cleared input", func(tm *TypingMachine) { tm.Input("bob", "   ") }},
		{"send", func(tm *TypingMachine) { tm.Stop("bob", "send") }},
		{"blur", func(tm *TypingMachine) { tm.Stop("bob", "blur") }},
		{"stop all", func(tm *TypingMachine) { tm.StopAll("logout") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			tm, tr := newTestTyping(clock)

			tm.Input("bob", "hey")
			tt.stop(tm)

			if tm.IsTyping("bob") {
				t.Fatal("expected idle immediately")
			}
			if got := signalStates(tr.typingSignals()); len(got) != 2 || got[1] {
				t.Fatalf("expected start then stop, got %v", got)
			}

			// The superseded debounce must not send a second stop.
			clock.Advance(2 * time.Second)
			time.Sleep(10 * time.Millisecond)
			if n := len(tr.typingSignals()); n != 2 {
				t.Errorf("expected 2 signals, got %d", n)
			}
		})
	}
}

func TestTypingIdleInputsSendNothing(t *testing.T) {
	tm, tr := newTestTyping(clockwork.NewFakeClock())
	tm.Input("bob", "")
	tm.Input("bob", "  ")
	tm.Stop("bob", "blur")
	if n := len(tr.typingSignals()); n != 0 {
		t.Errorf("expected no signals, got %d", n)
	}
}

func TestTypingPerPeer(t *testing.T) {
	tm, tr := newTestTyping(clockwork.NewFakeClock())
	tm.Input("bob", "a")
	tm.Input("carol", "b")
	tm.Stop("bob", "switch")

	if tm.IsTyping("bob") || !tm.IsTyping("carol") {
		t.Fatal("peers must be tracked separately")
	}
	if n := len(tr.typingSignals()); n != 3 {
		t.Errorf("expected 3 signals, got %d", n)
	}
}

// gatedSender holds the first stop signal until gate is closed.
type gatedSender struct {
	*fakeTransport
	held chan struct{}
	gate chan struct{}
	once sync.Once
}

func (g *gatedSender) Send(f Frame) error {
	if sig, ok := f.(TypingSignal); ok && !sig.IsTyping {
		g.once.Do(func() {
			close(g.held)
			<-g.gate
		})
	}
	return g.fakeTransport.Send(f)
}

func TestTypingSignalsStayOrdered(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := &gatedSender{fakeTransport: &fakeTransport{}, held: make(chan struct{}), gate: make(chan struct{})}
	tm := NewTypingMachine(g, &TypingConfig{User: "alice", Clock: clock, Logger: discardLogger()})

	tm.Input("bob", "h")
	go clock.Advance(time.Second)
	<-g.held

	done := make(chan struct{})
	go func() {
		defer close(done)
		tm.Input("bob", "hi")
	}()
	time.Sleep(20 * time.Millisecond)
	close(g.gate)
	<-done

	got := signalStates(g.typingSignals())
	if len(got) != 3 || !got[0] || got[1] || !got[2] {
		t.Fatalf("expected [true false true], got %v", got)
	}
	if !tm.IsTyping("bob") {
		t.Error("expected typing after the new keystroke")
	}
}

// ============================================================================
// Remote overlay
// ============================================================================

func TestTypingRemote(t *testing.T) {
	t.Run("expires without stop signal", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		tm, _ := newTestTyping(clock)

		var mu sync.Mutex
		var changes []bool
		tm.OnRemoteChange(func(from string, typing bool) {
			mu.Lock()
			changes = append(changes, typing)
			mu.Unlock()
		})

		tm.Remote(TypingSignal{From: "bob", To: "alice", IsTyping: true})
		if !tm.RemoteTyping("bob") {
			t.Fatal("expected remote typing")
		}

		clock.Advance(2999 * time.Millisecond)
		if !tm.RemoteTyping("bob") {
			t.Fatal("expired too early")
		}
		clock.Advance(time.Millisecond)
		waitFor(t, "remote expiry", func() bool { return !tm.RemoteTyping("bob") })

		mu.Lock()
		defer mu.Unlock()
		if len(changes) != 2 || !changes[0] || changes[1] {
			t.Errorf("expected [true false], got %v", changes)
		}
	})

	t.Run("explicit stop and clear", func(t *testing.T) {
		tm, _ := newTestTyping(clockwork.NewFakeClock())
		tm.Remote(TypingSignal{From: "bob", To: "alice", IsTyping: true})
		tm.Remote(TypingSignal{From: "bob", To: "alice", IsTyping: false})
		if tm.RemoteTyping("bob") {
			t.Fatal("stop signal must clear the overlay")
		}

		tm.Remote(TypingSignal{From: "bob", To: "alice", IsTyping: true})
		tm.ClearRemote("bob")
		if tm.RemoteTyping("bob") {
			t.Fatal("ClearRemote must clear the overlay")
		}
	})

	t.Run("signal for another user ignored", func(t *testing.T) {
		tm, _ := newTestTyping(clockwork.NewFakeClock())
		tm.Remote(TypingSignal{From: "bob", To: "carol", IsTyping: true})
		if tm.RemoteTyping("bob") {
			t.Fatal("expected signal to be ignored")
		}
	})
}
