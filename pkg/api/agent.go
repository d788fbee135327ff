package api

import (
	"context"

	"reasoner/pkg/llm"
)

//----------------------------------------------------------------
// Agent protocol - 團隊內部傳遞的訊息
//----------------------------------------------------------------

// BroadcastMessage shares one conversation turn with every agent on the bus.
// RequestHalt is set when the speaker considers the conversation finished.
type BroadcastMessage struct {
	Content     llm.UserMessage
	RequestHalt bool
}

// RequestReplyMessage asks the recipient to speak next.
type RequestReplyMessage struct{}

// ResetMessage asks the recipient to forget its history.
type ResetMessage struct{}

// DeactivateMessage tells the recipient to stop handling messages.
type DeactivateMessage struct{}

// Envelope wraps a protocol message with the ID of the agent that sent it.
type Envelope struct {
	Sender  string
	Message any
}

// Agent is a participant registered on a runtime.
type Agent interface {
	ID() string
	OnMessage(ctx context.Context, env Envelope) error
}

// Publisher broadcasts messages to every agent except the sender.
type Publisher interface {
	Publish(ctx context.Context, sender string, msg any) error
}

// PublisherAware agents receive the runtime's Publisher on registration.
type PublisherAware interface {
	SetPublisher(p Publisher)
}
