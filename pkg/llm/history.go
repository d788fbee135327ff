package llm

import (
	"strings"
	"sync"
)

// ChatHistory 管理一段對話的訊息序列（只增不改，讀取時返回副本）
type ChatHistory struct {
	messages []ChatMessage
	mu       sync.RWMutex
}

// NewChatHistory 建立一個新的歷史管理員
func NewChatHistory() *ChatHistory {
	return &ChatHistory{
		messages: make([]ChatMessage, 0),
	}
}

// Add 加入一則新訊息
func (h *ChatHistory) Add(msg ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
}

// GetMessages 取得目前的對話歷史副本
func (h *ChatHistory) GetMessages() []ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]ChatMessage, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len returns the number of stored turns.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Reset 清空所有歷史
func (h *ChatHistory) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = make([]ChatMessage, 0)
}

// Transcript renders the whole history as "Human: ..." / "AI: ..." lines.
func (h *ChatHistory) Transcript() string {
	var sb strings.Builder
	for _, m := range h.GetMessages() {
		sb.WriteString(m.PromptLine())
		sb.WriteString("\n")
	}
	return sb.String()
}

// UIMessage is the shape the web channel sends when replaying a history.
type UIMessage struct {
	Role   string `json:"role"`
	Source string `json:"source,omitempty"`
	Text   string `json:"text"`
}

// GetMessagesForUI flattens the history for display.
func (h *ChatHistory) GetMessagesForUI() []UIMessage {
	msgs := h.GetMessages()
	out := make([]UIMessage, 0, len(msgs))
	for _, m := range msgs {
		wire := m.ToMessage()
		out = append(out, UIMessage{
			Role:   wire.Role,
			Source: m.Speaker(),
			Text:   ContentToString(wire.Content),
		})
	}
	return out
}
