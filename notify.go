package forumchat

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"
)

// NotificationReporter posts unread activity to the server.
type NotificationReporter interface {
	ReportNotification(ctx context.Context, req *NotificationRequest) (*NotificationResult, error)
}

// refreshConcurrency bounds parallel badge refreshes after a roster snapshot.
const refreshConcurrency = 4

// Notifier mirrors the server's unread counters. A badge only ever shows a
// count returned by the server.
type Notifier struct {
	api    NotificationReporter
	view   View
	logger *slog.Logger

	mu     sync.Mutex
	badges map[string]int
}

// NewNotifier creates a notifier with no known badges.
func NewNotifier(api NotificationReporter, view View, logger *slog.Logger) *Notifier {
	if view == nil {
		view = NopView{}
	}
	return &Notifier{
		api:    api,
		view:   view,
		logger: loggerOrDefault(logger),
		badges: make(map[string]int),
	}
}

// ReportActivity reports unread activity from sender to receiver. A nil
// unread only reads the current count. On success the sender's badge is set
// to the returned count; on failure the badge is left unchanged.
func (n *Notifier) ReportActivity(ctx context.Context, receiver, sender string, unread *int) (int, error) {
	res, err := n.api.ReportNotification(ctx, &NotificationRequest{
		Receiver: receiver,
		Sender:   sender,
		Unread:   unread,
	})
	if err != nil {
		n.logger.WarnContext(ctx, "notification sync failed", "receiver", receiver, "sender", sender, "err", err)
		return n.Badge(sender), err
	}

	n.mu.Lock()
	n.badges[sender] = res.Unread
	n.mu.Unlock()

	n.view.SetBadge(sender, res.Unread)
	return res.Unread, nil
}

// Refresh reads the current count for every sender, a few at a time. A
// failure does not cancel the other requests; the first one is returned.
func (n *Notifier) Refresh(ctx context.Context, receiver string, senders []string) error {
	var g errgroup.Group
	g.SetLimit(refreshConcurrency)
	for _, sender := range senders {
		sender := sender
		g.Go(func() error {
			_, err := n.ReportActivity(ctx, receiver, sender, nil)
			return err
		})
	}
	return g.Wait()
}

// Badge returns the last count the server reported for sender.
func (n *Notifier) Badge(sender string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.badges[sender]
}

// Badges returns a copy of all known counts.
func (n *Notifier) Badges() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.badges)
}

// Clear forgets every badge.
func (n *Notifier) Clear() {
	n.mu.Lock()
	n.badges = make(map[string]int)
	n.mu.Unlock()
}
