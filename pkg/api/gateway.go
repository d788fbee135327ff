package api

//----------------------------------------------------------------
// Channels
//----------------------------------------------------------------

// Channel is a chat front-end (web socket, telegram bot...). Start must not
// block; inbound messages are handed to ctx.OnMessage.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	Send(session SessionContext, message string) error
}

// SignalingChannel is implemented by channels that can show transient UI
// state such as a typing indicator.
type SignalingChannel interface {
	Channel
	SendSignal(session SessionContext, signal string) error
}

// ChannelContext is what a running channel sees of the gateway.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// Signals understood by channels.
const (
	SignalThinking = "thinking"
)

//----------------------------------------------------------------
// Messages
//----------------------------------------------------------------

// SessionContext identifies one conversation on one channel. For direct
// chats ChatID may equal UserID.
type SessionContext struct {
	ChannelID string
	UserID    string
	ChatID    string
	Username  string
}

// Key is the session's history key, "<channel>_<chat>".
func (s SessionContext) Key() string {
	return s.ChannelID + "_" + s.ChatID
}

// UnifiedMessage is an inbound user message after channel decoding.
type UnifiedMessage struct {
	Session SessionContext
	Content string
	Files   []FileAttachment
	Raw     any    // channel payload, kept for debugging
	DebugID string // groups the logs of one request
}

// FileAttachment is an uploaded file, either saved on disk (Path) or inline (Data).
type FileAttachment struct {
	Filename string
	MimeType string
	Data     []byte
	Path     string
}

//----------------------------------------------------------------
// Handler side
//----------------------------------------------------------------

// MessageResponder sends replies and signals back through the gateway.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	SendSignal(session SessionContext, signal string) error
}

// MessageHandler receives inbound messages.
type MessageHandler func(*UnifiedMessage)

// MessageProcessor consumes inbound messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware components get the gateway injected as responder at build time.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}

// GatewayHandler is what the builder expects from the chat handler.
type GatewayHandler interface {
	MessageProcessor
	ResponderAware
}
