package forumchat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// URL is the ws:// or wss:// endpoint. Client.Channel fills it in.
	URL string
	// HTTPHeader is sent with the handshake; it carries the session cookie.
	HTTPHeader        http.Header
	HTTPClient        *http.Client
	SendBuffer        int
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	ReadLimit         int64
	Logger            *slog.Logger
}

func (c *ChannelConfig) defaults() {
	if c.SendBuffer == 0 {
		c.SendBuffer = 64
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	c.Logger = loggerOrDefault(c.Logger)
}

// ChannelState represents the connection state.
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
)

// FrameHandler receives decoded inbound frames, one at a time, in arrival order.
type FrameHandler func(Frame)

// ============================================================================
// Channel
// ============================================================================

// Channel is the persistent WebSocket connection to the chat server. It is
// opened once per login and is not reconnected when it drops.
type Channel struct {
	config *ChannelConfig
	logger *slog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            ChannelState
	identity         string
	intentionalClose bool
	cancelFn         context.CancelFunc
	sendCh           chan []byte
	onFrame          FrameHandler
	onState          []func(ChannelState)
}

// NewChannel creates a disconnected channel.
func NewChannel(config *ChannelConfig) *Channel {
	cfg := ChannelConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	return &Channel{
		config: &cfg,
		logger: cfg.Logger,
		state:  StateDisconnected,
	}
}

// OnFrame sets the handler for inbound frames. It replaces any previous handler.
func (ch *Channel) OnFrame(h FrameHandler) {
	ch.mu.Lock()
	ch.onFrame = h
	ch.mu.Unlock()
}

// OnStateChange registers an observer for state transitions.
func (ch *Channel) OnStateChange(h func(ChannelState)) {
	ch.mu.Lock()
	ch.onState = append(ch.onState, h)
	ch.mu.Unlock()
}

// State returns the current connection state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Identity returns the user the channel was opened for.
func (ch *Channel) Identity() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.identity
}

func (ch *Channel) setState(s ChannelState) {
	ch.mu.Lock()
	if ch.state == s {
		ch.mu.Unlock()
		return
	}
	ch.state = s
	handlers := append([]func(ChannelState){}, ch.onState...)
	ch.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}

// Connect opens the channel for identity. It is a no-op when the channel is
// already connected or connecting. Dial failures return *ConnectionError.
func (ch *Channel) Connect(ctx context.Context, identity string) error {
	ch.mu.Lock()
	if ch.state == StateConnected || ch.state == StateConnecting {
		ch.mu.Unlock()
		return nil
	}
	ch.identity = identity
	ch.intentionalClose = false
	ch.mu.Unlock()
	ch.setState(StateConnecting)

	conn, _, err := websocket.Dial(ctx, ch.config.URL, &websocket.DialOptions{
		HTTPClient: ch.config.HTTPClient,
		HTTPHeader: ch.config.HTTPHeader,
	})
	if err != nil {
		ch.logger.ErrorContext(ctx, "channel dial failed", "url", ch.config.URL, "err", err)
		ch.setState(StateDisconnected)
		return &ConnectionError{URL: ch.config.URL, Err: err}
	}
	conn.SetReadLimit(ch.config.ReadLimit)

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sendCh := make(chan []byte, ch.config.SendBuffer)

	ch.mu.Lock()
	ch.conn = conn
	ch.cancelFn = cancel
	ch.sendCh = sendCh
	ch.mu.Unlock()
	ch.setState(StateConnected)

	ch.logger.InfoContext(ctx, "channel connected", "url", ch.config.URL, "identity", identity)

	go ch.readLoop(connCtx, conn)
	go ch.writeLoop(connCtx, conn, sendCh)
	go ch.heartbeatLoop(connCtx, conn)

	return nil
}

// Send encodes f and queues it for delivery. It never blocks; errors only
// report local failures.
func (ch *Channel) Send(f Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != StateConnected || ch.sendCh == nil {
		return ErrNotConnected
	}
	select {
	case ch.sendCh <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts the channel down. Calling it on a closed channel is harmless.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	ch.intentionalClose = true
	if ch.cancelFn != nil {
		ch.cancelFn()
		ch.cancelFn = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.sendCh = nil
	ch.mu.Unlock()

	ch.setState(StateDisconnected)

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			ch.mu.Lock()
			intentional := ch.intentionalClose
			if ch.conn == conn {
				ch.conn = nil
				ch.sendCh = nil
				if ch.cancelFn != nil {
					ch.cancelFn()
					ch.cancelFn = nil
				}
			}
			ch.mu.Unlock()
			if intentional {
				return
			}

			ch.logger.WarnContext(ctx, "channel closed", "status", websocket.CloseStatus(err), "err", err)
			ch.setState(StateDisconnected)
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			if errors.Is(err, ErrUnknownFrame) {
				ch.logger.DebugContext(ctx, "ignoring frame", "err", err)
			} else {
				ch.logger.WarnContext(ctx, "malformed frame", "err", err)
			}
			continue
		}

		ch.mu.Lock()
		h := ch.onFrame
		ch.mu.Unlock()
		if h != nil {
			h(frame)
		}
	}
}

func (ch *Channel) writeLoop(ctx context.Context, conn *websocket.Conn, sendCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, ch.config.WriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				ch.logger.WarnContext(ctx, "channel write failed", "err", err)
			}
		}
	}
}

func (ch *Channel) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(ch.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, ch.config.HeartbeatInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				ch.logger.WarnContext(ctx, "heartbeat failed", "err", err)
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}
