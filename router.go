package forumchat

import "context"

// HandleFrame routes one inbound frame. The channel calls it from its reader
// goroutine, so frames are handled one at a time in arrival order.
func (s *Session) HandleFrame(f Frame) {
	switch v := f.(type) {
	case RosterSnapshot:
		s.handleRoster(v)
	case TypingSignal:
		s.typing.Remote(v)
	case ChatMessage:
		s.handleMessage(v.Message)
	default:
		s.logger.WarnContext(s.ctx, "unhandled frame", "kind", f.Kind())
	}
}

func (s *Session) handleRoster(snap RosterSnapshot) {
	entries := s.roster.Replace(snap.Users)
	s.view.SetRoster(entries)

	senders := make([]string, len(entries))
	for i, e := range entries {
		senders[i] = e.Username
	}
	s.goBackground(func(ctx context.Context) {
		_ = s.notifier.Refresh(ctx, s.user, senders)
	})
}

func (s *Session) handleMessage(msg Message) {
	peer := msg.Peer(s.user)
	if peer == "" {
		s.logger.WarnContext(s.ctx, "dropping message for another user", "from", msg.From, "to", msg.To)
		return
	}

	if peer == s.Active() {
		if s.cache.Append(peer, msg) {
			s.view.AppendMessage(peer, msg)
		}
		s.typing.ClearRemote(msg.From)
		return
	}

	s.cache.Append(peer, msg)
	s.typing.ClearRemote(msg.From)
	s.view.ShowRosterTyping(msg.From, false)

	if msg.To == s.user {
		s.goBackground(func(ctx context.Context) {
			_, _ = s.notifier.ReportActivity(ctx, msg.To, msg.From, Unread(1))
		})
	}
}

// showRemoteTyping renders a remote typing change inline for the open
// conversation and as a roster badge otherwise.
func (s *Session) showRemoteTyping(from string, typing bool) {
	if from == s.Active() {
		s.view.ShowTyping(from, typing)
		return
	}
	s.view.ShowRosterTyping(from, typing)
}
