package forumchat

import (
	"slices"
	"sort"
	"sync"
)

// ============================================================================
// Message Cache
// ============================================================================

type cacheEntry struct {
	messages  []Message
	seen      map[messageKey]struct{}
	exhausted bool
	inFlight  bool
	slot      uint64
	seeded    bool
}

// MessageCache holds the known history of every conversation, keyed by peer.
// Messages are kept sorted by timestamp with arrival order breaking ties, and
// a message never appears twice.
type MessageCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewMessageCache creates an empty cache.
func NewMessageCache() *MessageCache {
	return &MessageCache{entries: make(map[string]*cacheEntry)}
}

// entry returns the entry for key, creating it. Caller holds c.mu.
func (c *MessageCache) entry(key string) *cacheEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{seen: make(map[messageKey]struct{})}
		c.entries[key] = e
	}
	return e
}

// Append inserts a live message. It reports false for a duplicate.
func (c *MessageCache) Append(key string, msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	k := msg.key()
	if _, dup := e.seen[k]; dup {
		return false
	}
	e.seen[k] = struct{}{}

	// Insert after every message with a timestamp not after msg's.
	i := sort.Search(len(e.messages), func(i int) bool {
		return e.messages[i].Timestamp.After(msg.Timestamp)
	})
	e.messages = slices.Insert(e.messages, i, msg)
	return true
}

// Prepend merges a page of older history and returns the messages actually
// added. Only messages strictly older than the oldest held are accepted.
func (c *MessageCache) Prepend(key string, msgs []Message) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	var added []Message
	for _, m := range msgs {
		if len(e.messages) > 0 && !m.Timestamp.Before(e.messages[0].Timestamp) {
			continue
		}
		k := m.key()
		if _, dup := e.seen[k]; dup {
			continue
		}
		e.seen[k] = struct{}{}
		added = append(added, m)
	}
	if len(added) == 0 {
		return nil
	}

	sortStable(added)
	e.messages = append(slices.Clone(added), e.messages...)
	return added
}

// Seed merges the first history page of a conversation and marks it seeded.
// Messages that arrived live before the page are kept.
func (c *MessageCache) Seed(key string, msgs []Message) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	e.seeded = true
	for _, m := range msgs {
		k := m.key()
		if _, dup := e.seen[k]; dup {
			continue
		}
		e.seen[k] = struct{}{}
		e.messages = append(e.messages, m)
	}
	sortStable(e.messages)
	return slices.Clone(e.messages)
}

// Snapshot returns a copy of the messages held for key.
func (c *MessageCache) Snapshot(key string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return slices.Clone(e.messages)
	}
	return nil
}

// Len returns the number of messages held for key.
func (c *MessageCache) Len(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return len(e.messages)
	}
	return 0
}

// Seeded reports whether the first history page has been merged for key.
func (c *MessageCache) Seeded(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.seeded
}

// Exhausted reports whether the server has no older history for key.
func (c *MessageCache) Exhausted(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.exhausted
}

// InFlight reports whether a history load is running for key.
func (c *MessageCache) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.inFlight
}

// BeginLoad claims the load slot for key and returns the offset to fetch
// from and a slot token for EndLoad. It fails when a load is already running
// or history is exhausted.
func (c *MessageCache) BeginLoad(key string) (offset int, slot uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	if e.inFlight || e.exhausted {
		return 0, 0, false
	}
	e.inFlight = true
	e.slot++
	return len(e.messages), e.slot, true
}

// EndLoad releases the load slot for key if slot still owns it. It reports
// whether the slot was released.
func (c *MessageCache) EndLoad(key string, slot uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.inFlight || e.slot != slot {
		return false
	}
	e.inFlight = false
	return true
}

// MarkExhausted records that key has no older history.
func (c *MessageCache) MarkExhausted(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(key).exhausted = true
}

// ResetPagination clears the exhausted flag so that history can be probed
// again when the conversation is reopened. A load still holding the slot
// loses it; its EndLoad becomes a no-op.
func (c *MessageCache) ResetPagination(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.exhausted = false
		if e.inFlight {
			e.inFlight = false
			e.slot++
		}
	}
}

// Clear drops every entry.
func (c *MessageCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

func sortStable(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
