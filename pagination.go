package forumchat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// HistoryFetcher loads one page of a conversation, newest first by offset.
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, from, to string, offset int) ([]Message, error)
}

// PaginatorConfig configures a Paginator.
type PaginatorConfig struct {
	User             string
	NearTopThreshold int
	ScrollThrottle   time.Duration
	// LoaderMinDisplay is how long the loader stays visible at least. A
	// negative value disables it.
	LoaderMinDisplay time.Duration
	Clock            clockwork.Clock
	Logger           *slog.Logger
}

func (c *PaginatorConfig) defaults() {
	if c.NearTopThreshold == 0 {
		c.NearTopThreshold = 100
	}
	if c.ScrollThrottle == 0 {
		c.ScrollThrottle = 200 * time.Millisecond
	}
	if c.LoaderMinDisplay == 0 {
		c.LoaderMinDisplay = 500 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	c.Logger = loggerOrDefault(c.Logger)
}

// ============================================================================
// Paginator
// ============================================================================

// Paginator loads older history for the open conversation when the viewport
// nears the top. At most one load runs per conversation; responses that
// arrive after the conversation was switched or reopened are discarded.
type Paginator struct {
	cache   *MessageCache
	fetcher HistoryFetcher
	view    View
	cfg     PaginatorConfig

	mu         sync.Mutex
	peer       string
	epoch      uint64
	seeding    bool
	lastScroll time.Time
	retried    bool
}

// NewPaginator creates a detached paginator.
func NewPaginator(cache *MessageCache, fetcher HistoryFetcher, view View, config *PaginatorConfig) *Paginator {
	cfg := PaginatorConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	if view == nil {
		view = NopView{}
	}
	return &Paginator{
		cache:   cache,
		fetcher: fetcher,
		view:    view,
		cfg:     cfg,
	}
}

// Attach starts paginating peer's conversation. Exhaustion recorded for peer
// is forgotten, so a reopened conversation probes the server again, and a
// loader left by an earlier load is hidden.
func (p *Paginator) Attach(peer string) {
	p.attach(peer, false)
}

// AttachSeeding attaches peer whose first page is still to be loaded.
// LoadOlder does nothing until LoadInitial has completed.
func (p *Paginator) AttachSeeding(peer string) {
	p.attach(peer, true)
}

func (p *Paginator) attach(peer string, seeding bool) {
	p.mu.Lock()
	p.epoch++
	p.peer = peer
	p.seeding = seeding
	p.lastScroll = time.Time{}
	p.retried = false
	p.mu.Unlock()

	p.cache.ResetPagination(peer)
	p.view.SetLoading(peer, false)
}

// Detach stops paginating. Loads still running are discarded on completion.
func (p *Paginator) Detach() {
	p.mu.Lock()
	p.epoch++
	p.peer = ""
	p.seeding = false
	p.mu.Unlock()
}

// Peer returns the attached conversation, or "".
func (p *Paginator) Peer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

func (p *Paginator) snapshot() (string, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer, p.epoch
}

func (p *Paginator) seeded(epoch uint64) {
	p.mu.Lock()
	if p.epoch == epoch {
		p.seeding = false
	}
	p.mu.Unlock()
}

func (p *Paginator) current(peer string, epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer == peer && p.epoch == epoch
}

// OnScroll handles a scroll event at offset pixels from the top. It reports
// whether a load was triggered. Events closer together than the throttle
// interval are ignored.
func (p *Paginator) OnScroll(ctx context.Context, offset int) bool {
	p.mu.Lock()
	if p.peer == "" {
		p.mu.Unlock()
		return false
	}
	now := p.cfg.Clock.Now()
	if !p.lastScroll.IsZero() && now.Sub(p.lastScroll) < p.cfg.ScrollThrottle {
		p.mu.Unlock()
		return false
	}
	p.lastScroll = now
	if offset > p.cfg.NearTopThreshold {
		p.mu.Unlock()
		return false
	}
	p.retried = false
	peer := p.peer
	p.mu.Unlock()

	go func() {
		_, _ = p.LoadOlder(ctx, peer)
	}()
	return true
}

// LoadInitial fetches the most recent page for peer, seeds the cache and
// renders the merged history. It holds the load slot while fetching, so
// LoadOlder waits for the first page. It does nothing if peer is no longer
// attached when the page arrives.
func (p *Paginator) LoadInitial(ctx context.Context, peer string) error {
	cur, epoch := p.snapshot()
	if cur != peer || peer == "" {
		return nil
	}
	_, slot, ok := p.cache.BeginLoad(peer)
	if !ok {
		p.cfg.Logger.DebugContext(ctx, "history load already running", "peer", peer)
		return nil
	}
	defer p.cache.EndLoad(peer, slot)
	defer p.seeded(epoch)

	page, err := p.fetcher.FetchMessages(ctx, p.cfg.User, peer, 0)
	if err != nil {
		p.cfg.Logger.WarnContext(ctx, "initial history load failed", "peer", peer, "err", err)
		return err
	}
	if !p.current(peer, epoch) {
		p.cfg.Logger.DebugContext(ctx, "discarding stale history page", "peer", peer)
		return nil
	}

	merged := p.cache.Seed(peer, page)
	if len(page) == 0 {
		p.cache.MarkExhausted(peer)
	}
	p.view.RenderHistory(peer, merged)
	return nil
}

// LoadOlder fetches the page preceding the oldest held message of peer and
// returns how many messages were added. It is a no-op while another load for
// peer is running, before the first page is in, once history is exhausted,
// or when peer is not attached.
func (p *Paginator) LoadOlder(ctx context.Context, peer string) (int, error) {
	p.mu.Lock()
	cur, epoch, seeding := p.peer, p.epoch, p.seeding
	p.mu.Unlock()
	if cur != peer || peer == "" || seeding {
		return 0, nil
	}
	offset, slot, ok := p.cache.BeginLoad(peer)
	if !ok {
		return 0, nil
	}

	started := p.cfg.Clock.Now()
	p.view.SetLoading(peer, true)

	page, err := p.fetcher.FetchMessages(ctx, p.cfg.User, peer, offset)
	added := 0
	switch {
	case err != nil:
		p.cfg.Logger.WarnContext(ctx, "history load failed", "peer", peer, "offset", offset, "err", err)
	case !p.current(peer, epoch):
		p.cfg.Logger.DebugContext(ctx, "discarding stale history page", "peer", peer, "offset", offset)
	case len(page) == 0:
		p.cache.MarkExhausted(peer)
	default:
		if older := p.cache.Prepend(peer, page); len(older) > 0 {
			p.view.PrependMessages(peer, older)
			added = len(older)
		}
	}

	release := func() { p.release(ctx, peer, epoch, slot, err == nil) }
	if remaining := p.cfg.LoaderMinDisplay - p.cfg.Clock.Since(started); remaining > 0 {
		p.cfg.Clock.AfterFunc(remaining, release)
	} else {
		release()
	}
	return added, err
}

// release frees the load slot, hides the loader and retries once if the
// viewport is still near the top. A load whose slot was taken over by a
// reopened conversation leaves the new loader alone.
func (p *Paginator) release(ctx context.Context, peer string, epoch, slot uint64, ok bool) {
	if !p.cache.EndLoad(peer, slot) {
		return
	}
	p.view.SetLoading(peer, false)

	if !p.current(peer, epoch) || !ok || p.cache.Exhausted(peer) {
		return
	}
	if p.view.ScrollOffset() > p.cfg.NearTopThreshold {
		return
	}

	p.mu.Lock()
	retry := p.peer == peer && p.epoch == epoch && !p.retried
	p.retried = true
	p.mu.Unlock()
	if retry {
		_, _ = p.LoadOlder(ctx, peer)
	}
}
