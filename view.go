package forumchat

// View is the presentation boundary. The session calls it to render state
// changes; implementations must not call back into the session synchronously.
type View interface {
	ShowConversation(peer string)
	HideConversation()
	RenderHistory(peer string, msgs []Message)
	AppendMessage(peer string, msg Message)
	PrependMessages(peer string, msgs []Message)
	SetLoading(peer string, loading bool)

	// ShowTyping toggles the inline indicator of the open conversation.
	ShowTyping(peer string, typing bool)
	// ShowRosterTyping toggles the indicator next to peer in the roster.
	ShowRosterTyping(peer string, typing bool)

	SetRoster(entries []RosterEntry)
	SetBadge(sender string, unread int)
	SetConnectionState(state ChannelState)
	LoggedOut()

	// ScrollOffset is the distance in pixels from the top of the open
	// conversation.
	ScrollOffset() int
}

// NopView ignores every call. Embed it to implement only part of View.
type NopView struct{}

var _ View = NopView{}

func (NopView) ShowConversation(string)              {}
func (NopView) HideConversation()                    {}
func (NopView) RenderHistory(string, []Message)      {}
func (NopView) AppendMessage(string, Message)        {}
func (NopView) PrependMessages(string, []Message)    {}
func (NopView) SetLoading(string, bool)              {}
func (NopView) ShowTyping(string, bool)              {}
func (NopView) ShowRosterTyping(string, bool)        {}
func (NopView) SetRoster([]RosterEntry)              {}
func (NopView) SetBadge(string, int)                 {}
func (NopView) SetConnectionState(ChannelState)      {}
func (NopView) LoggedOut()                           {}

// ScrollOffset reports a viewport far from the top, so nothing auto-loads.
func (NopView) ScrollOffset() int { return 1 << 30 }
