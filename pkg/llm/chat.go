package llm

import "time"

//----------------------------------------------------------------
// ChatMessage - 對話歷史中的一則訊息（UserMessage | AIMessage）
//----------------------------------------------------------------

// ChatMessage is one turn of a conversation. The only implementations are
// UserMessage and AIMessage; the interface is sealed by an unexported method.
type ChatMessage interface {
	// PromptLine renders the turn as a single transcript line, labelled with
	// the speaker ("Human: ..." or "AI: ...").
	PromptLine() string
	// ToMessage converts the turn to the provider wire format.
	ToMessage() Message
	// Speaker returns the source label attached to the turn.
	Speaker() string

	chatMessage()
}

// UserMessage is a turn authored by a human or by another agent speaking
// into the conversation.
type UserMessage struct {
	Content []ContentBlock `json:"content"`
	Source  string         `json:"source"`
}

// AIMessage is a turn produced by the model on behalf of an agent.
type AIMessage struct {
	Content []ContentBlock `json:"content"`
	Source  string         `json:"source,omitempty"`
}

var (
	_ ChatMessage = UserMessage{}
	_ ChatMessage = AIMessage{}
)

// NewUserText builds a plain-text UserMessage.
func NewUserText(text, source string) UserMessage {
	return UserMessage{Content: []ContentBlock{NewTextBlock(text)}, Source: source}
}

// NewAIText builds a plain-text AIMessage.
func NewAIText(text, source string) AIMessage {
	return AIMessage{Content: []ContentBlock{NewTextBlock(text)}, Source: source}
}

func (m UserMessage) PromptLine() string {
	return HumanLabel + ": " + ContentToString(m.Content)
}

func (m UserMessage) ToMessage() Message {
	return Message{Role: RoleUser, Content: cloneBlocks(m.Content), Timestamp: time.Now().Unix()}
}

func (m UserMessage) Speaker() string { return m.Source }

func (UserMessage) chatMessage() {}

func (m AIMessage) PromptLine() string {
	return AILabel + ": " + ContentToString(m.Content)
}

func (m AIMessage) ToMessage() Message {
	return Message{Role: RoleAssistant, Content: cloneBlocks(m.Content), Timestamp: time.Now().Unix()}
}

func (m AIMessage) Speaker() string { return m.Source }

func (AIMessage) chatMessage() {}

// ToMessages converts an ordered conversation to provider messages.
func ToMessages(msgs []ChatMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToMessage())
	}
	return out
}

func cloneBlocks(blocks []ContentBlock) []ContentBlock {
	if blocks == nil {
		return nil
	}
	cp := make([]ContentBlock, len(blocks))
	copy(cp, blocks)
	return cp
}
