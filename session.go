package forumchat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ChatAPI is the REST surface a session depends on. *Client implements it.
type ChatAPI interface {
	HistoryFetcher
	NotificationReporter
	Logged(ctx context.Context) (*LoggedResult, error)
}

// Transport is the realtime channel a session depends on. *Channel implements it.
type Transport interface {
	FrameSender
	Connect(ctx context.Context, identity string) error
	OnFrame(h FrameHandler)
	OnStateChange(h func(ChannelState))
	Close() error
}

var (
	_ ChatAPI   = (*Client)(nil)
	_ Transport = (*Channel)(nil)
)

// SessionConfig configures a Session. Zero durations use the defaults of the
// component they configure.
type SessionConfig struct {
	// User is the logged-in username.
	User string `validate:"required"`
	View View   `validate:"-"`

	// Channel is used by Client.NewSession to build the transport.
	Channel *ChannelConfig `validate:"-"`

	Clock  clockwork.Clock `validate:"-"`
	Logger *slog.Logger    `validate:"-"`

	TypingDebounce      time.Duration `validate:"gte=0"`
	RemoteTypingTimeout time.Duration `validate:"gte=0"`
	ScrollThrottle      time.Duration `validate:"gte=0"`
	// LoaderMinDisplay is negative to disable the loader minimum.
	LoaderMinDisplay    time.Duration
	NearTopThreshold    int           `validate:"gte=0"`
}

func (c *SessionConfig) defaults() {
	if c.View == nil {
		c.View = NopView{}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	c.Logger = loggerOrDefault(c.Logger)
}

// ============================================================================
// Session
// ============================================================================

// Session is one logged-in user's chat. It owns the conversation cache, the
// single active conversation and the typing, pagination and unread state,
// and routes every inbound frame.
type Session struct {
	id        string
	user      string
	api       ChatAPI
	transport Transport
	view      View
	clock     clockwork.Clock
	logger    *slog.Logger

	// ctx carries the session ID into background work started by frames.
	ctx    context.Context
	cancel context.CancelFunc

	cache    *MessageCache
	pager    *Paginator
	typing   *TypingMachine
	roster   *Roster
	notifier *Notifier

	mu     sync.Mutex
	active string
	closed bool
	wg     sync.WaitGroup
}

// NewSession wires a session over api and transport. Call Start to connect.
func NewSession(api ChatAPI, transport Transport, config *SessionConfig) (*Session, error) {
	if api == nil || transport == nil {
		return nil, fmt.Errorf("%w: api and transport required", ErrInvalidInput)
	}
	if config == nil {
		return nil, fmt.Errorf("%w: session config required", ErrInvalidInput)
	}
	cfg := *config
	if err := validateStruct(&cfg); err != nil {
		return nil, err
	}
	cfg.defaults()

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(WithSessionID(context.Background(), id))
	logger := cfg.Logger.With("user", cfg.User)

	s := &Session{
		id:        id,
		user:      cfg.User,
		api:       api,
		transport: transport,
		view:      cfg.View,
		clock:     cfg.Clock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		cache:     NewMessageCache(),
		roster:    NewRoster(cfg.User),
		notifier:  NewNotifier(api, cfg.View, logger),
	}
	s.pager = NewPaginator(s.cache, api, cfg.View, &PaginatorConfig{
		User:             cfg.User,
		NearTopThreshold: cfg.NearTopThreshold,
		ScrollThrottle:   cfg.ScrollThrottle,
		LoaderMinDisplay: cfg.LoaderMinDisplay,
		Clock:            cfg.Clock,
		Logger:           logger,
	})
	s.typing = NewTypingMachine(transport, &TypingConfig{
		User:          cfg.User,
		Debounce:      cfg.TypingDebounce,
		RemoteTimeout: cfg.RemoteTypingTimeout,
		Clock:         cfg.Clock,
		Logger:        logger,
	})
	s.typing.OnRemoteChange(s.showRemoteTyping)

	transport.OnFrame(s.HandleFrame)
	transport.OnStateChange(func(st ChannelState) {
		s.logger.InfoContext(s.ctx, "channel state", "state", st)
		s.view.SetConnectionState(st)
	})
	return s, nil
}

// ID returns the session's unique ID, attached to its log records.
func (s *Session) ID() string { return s.id }

// User returns the logged-in username.
func (s *Session) User() string { return s.user }

// Active returns the open conversation's peer, or "".
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Start opens the channel. A *ConnectionError means chat is unavailable
// until the next login.
func (s *Session) Start(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	ctx = WithSessionID(ctx, s.id)
	if err := s.transport.Connect(ctx, s.user); err != nil {
		s.logger.ErrorContext(ctx, "chat unavailable", "err", err)
		return err
	}
	return nil
}

// Open makes peer the active conversation. Typing to the previous peer is
// stopped, the unread count for peer is reset, and history is rendered from
// the cache or fetched.
func (s *Session) Open(ctx context.Context, peer string) error {
	if peer == "" || peer == s.user {
		return fmt.Errorf("%w: cannot open conversation with %q", ErrInvalidInput, peer)
	}
	ctx = WithSessionID(ctx, s.id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.active
	s.active = peer
	s.mu.Unlock()

	if prev != "" {
		s.typing.Stop(prev, "switch")
	}
	s.pager.Detach()
	seeded := s.cache.Seeded(peer)
	if seeded {
		s.pager.Attach(peer)
	} else {
		s.pager.AttachSeeding(peer)
	}

	s.view.ShowConversation(peer)
	s.view.ShowRosterTyping(peer, false)
	if s.typing.RemoteTyping(peer) {
		s.view.ShowTyping(peer, true)
	}

	// Failures are logged by the notifier; the conversation still opens.
	_, _ = s.notifier.ReportActivity(ctx, s.user, peer, Unread(0))

	if seeded {
		if s.Active() == peer {
			s.view.RenderHistory(peer, s.cache.Snapshot(peer))
		}
		return nil
	}
	return s.pager.LoadInitial(ctx, peer)
}

// Close hides the open conversation.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.active
	s.active = ""
	s.mu.Unlock()

	if prev != "" {
		s.typing.Stop(prev, "close")
	}
	s.pager.Detach()
	s.view.HideConversation()
}

// Input records the compose box contents for the open conversation.
func (s *Session) Input(text string) {
	if peer := s.Active(); peer != "" {
		s.typing.Input(peer, text)
	}
}

// Blur records that the compose box lost focus.
func (s *Session) Blur() {
	if peer := s.Active(); peer != "" {
		s.typing.Stop(peer, "blur")
	}
}

// Scroll reports the viewport's distance from the top of the open
// conversation. It returns whether older history is being loaded.
func (s *Session) Scroll(ctx context.Context, offset int) bool {
	return s.pager.OnScroll(WithSessionID(ctx, s.id), offset)
}

// LoadOlder loads the page before the oldest held message of the open
// conversation.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	peer := s.Active()
	if peer == "" {
		return 0, nil
	}
	return s.pager.LoadOlder(WithSessionID(ctx, s.id), peer)
}

// Send checks that the login is still valid and sends content to the open
// conversation. If the check fails the session is torn down, nothing is sent
// and the returned error wraps ErrAuthExpired.
func (s *Session) Send(ctx context.Context, content string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	ctx = WithSessionID(ctx, s.id)

	peer := s.Active()
	if peer != "" {
		s.typing.Stop(peer, "send")
	}

	if _, err := s.api.Logged(ctx); err != nil {
		s.logger.WarnContext(ctx, "liveness check failed", "err", err)
		s.expire()
		return fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}

	if peer == "" {
		return fmt.Errorf("%w: no open conversation", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	msg := Message{
		From:      s.user,
		To:        peer,
		Content:   content,
		Timestamp: s.clock.Now().UTC(),
	}
	if err := validateStruct(msg); err != nil {
		return err
	}
	if err := s.transport.Send(ChatMessage{Message: msg}); err != nil {
		s.logger.WarnContext(ctx, "message not sent", "peer", peer, "err", err)
		return err
	}

	if s.cache.Append(peer, msg) && s.Active() == peer {
		s.view.AppendMessage(peer, msg)
	}
	return nil
}

// expire handles a failed liveness check: typing stops, the conversation
// closes and the view is routed to the logged-out state.
func (s *Session) expire() {
	s.typing.StopAll("logged out")
	s.Close()
	s.view.LoggedOut()
}

// Logout tears the session down: typing stops, the channel closes, and all
// cached state is dropped. Background work is awaited.
func (s *Session) Logout() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.typing.StopAll("logout")
	s.Close()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.transport.Close()
	s.wg.Wait()

	s.typing.Reset()
	s.cache.Clear()
	s.roster.Clear()
	s.notifier.Clear()
	s.logger.InfoContext(s.ctx, "session closed")
	return err
}

// goBackground runs f with the session context unless the session is closed.
func (s *Session) goBackground(f func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		f(s.ctx)
	}()
}

// Wait blocks until background work started by inbound frames is done.
func (s *Session) Wait() {
	s.wg.Wait()
}

// ============================================================================
// Accessors
// ============================================================================

// Snapshot returns the cached history with peer.
func (s *Session) Snapshot(peer string) []Message { return s.cache.Snapshot(peer) }

// Badge returns the unread count last reported by the server for sender.
func (s *Session) Badge(sender string) int { return s.notifier.Badge(sender) }

// Roster returns the online users.
func (s *Session) Roster() []RosterEntry { return s.roster.Entries() }

// LocalTyping reports whether the user is typing to peer.
func (s *Session) LocalTyping(peer string) bool { return s.typing.IsTyping(peer) }

// RemoteTyping reports whether peer is shown as typing.
func (s *Session) RemoteTyping(peer string) bool { return s.typing.RemoteTyping(peer) }

// Exhausted reports whether all history with peer has been loaded.
func (s *Session) Exhausted(peer string) bool { return s.cache.Exhausted(peer) }
