package model

// ChatEventKind classifies inbound chat transport events.
type ChatEventKind string

const (
	ChatEventCommand ChatEventKind = "command"
	ChatEventText    ChatEventKind = "text"
	ChatEventButton  ChatEventKind = "button"
)

// ChatEvent is one discrete event delivered by the chat transport.
type ChatEvent struct {
	ChatID    int64
	UserID    int64
	UserName  string
	MessageID int64 // message the event originated from; buttons use it for deletion
	Kind      ChatEventKind
	Command   string // without the leading slash
	Text      string
	Payload   string // opaque button payload
}

// RenderKind classifies outbound render requests.
type RenderKind string

const (
	RenderText   RenderKind = "text"
	RenderImage  RenderKind = "image"
	RenderDelete RenderKind = "delete"
)

// Button is an inline button with an opaque payload that round-trips through
// the transport unchanged.
type Button struct {
	Label   string
	Payload string
}

// RenderRequest asks the transport to send or delete a message.
type RenderRequest struct {
	Kind      RenderKind
	Text      string     // message text or image caption
	Image     string     // logical image name for RenderImage
	Buttons   [][]Button // rows of inline buttons
	MessageID int64      // target of RenderDelete
}
