package forumchat

import "sync"

// Roster is the list of online users, excluding the current user.
type Roster struct {
	self string

	mu      sync.Mutex
	entries []RosterEntry
}

// NewRoster creates an empty roster for self.
func NewRoster(self string) *Roster {
	return &Roster{self: self}
}

// Replace rebuilds the roster from a snapshot and returns the new entries.
func (r *Roster) Replace(users []string) []RosterEntry {
	seen := make(map[string]struct{}, len(users))
	entries := make([]RosterEntry, 0, len(users))
	for _, u := range users {
		if u == "" || u == r.self {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		entries = append(entries, RosterEntry{Username: u, Online: true})
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return append([]RosterEntry(nil), entries...)
}

// Entries returns a copy of the roster.
func (r *Roster) Entries() []RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RosterEntry(nil), r.entries...)
}

// Online reports whether user is in the roster.
func (r *Roster) Online(user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Username == user {
			return e.Online
		}
	}
	return false
}

// Usernames returns the names in roster order.
func (r *Roster) Usernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Username
	}
	return names
}

// Clear empties the roster.
func (r *Roster) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
