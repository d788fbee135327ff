package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

//----------------------------------------------------------------
// Provider wire model
//----------------------------------------------------------------

// Message is one role-tagged turn as handed to a provider. The Reasoner only
// produces user and assistant turns; system turns come from NewSystemMessage.
type Message struct {
	Role      string         `json:"role"`
	Content   []ContentBlock `json:"content"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

// ToolCall is a function call the model emitted instead of text.
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`
}

// FunctionCall 參數為原始 JSON 字串
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ContentBlock is one part of a message: text, thinking, image or error.
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource locates image bytes. Type is "base64" (Data inline), "url",
// or "file" (Path on disk, read lazily by Bytes).
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
	URL       string `json:"url,omitempty"`
	Path      string `json:"path,omitempty"`
}

// Bytes returns the raw image bytes. URL sources have none.
func (is *ImageSource) Bytes() ([]byte, error) {
	if len(is.Data) > 0 {
		return is.Data, nil
	}
	if is.Type != "file" || is.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(is.Path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", is.Path, err)
	}
	return data, nil
}

//----------------------------------------------------------------
// Streaming
//----------------------------------------------------------------

// StreamChunk 串流回應的增量片段；最後一個 chunk 帶 IsFinal、FinishReason 與 Usage
type StreamChunk struct {
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	Error         *ChunkError    `json:"error,omitempty"`
	IsFinal       bool           `json:"is_final"`
	FinishReason  string         `json:"finish_reason,omitempty"`
	Usage         *LLMUsage      `json:"usage,omitempty"`
}

// ChunkError is a problem reported mid-stream. Fatal ends the stream.
type ChunkError struct {
	Message string `json:"message"`
	Cause   error  `json:"-"`
	Fatal   bool   `json:"fatal"`
}

//----------------------------------------------------------------
// Constructors
//----------------------------------------------------------------

func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   []ContentBlock{NewTextBlock(text)},
		Timestamp: time.Now().Unix(),
	}
}

func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// GetTextContent concatenates the text blocks, skipping thinking and images.
func (m *Message) GetTextContent() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == BlockTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func (m *Message) HasImages() bool {
	for _, b := range m.Content {
		if b.Type == BlockTypeImage {
			return true
		}
	}
	return false
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

func NewThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Text: text}
}

// NewImageBlock wraps inline bytes.
func NewImageBlock(data []byte, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockTypeImage, Source: &ImageSource{Type: "base64", MediaType: mimeType, Data: data}}
}

func NewImageBlockFromURL(url, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockTypeImage, Source: &ImageSource{Type: "url", MediaType: mimeType, URL: url}}
}

// NewImageBlockFromFile references a saved attachment; it is read when a provider needs it.
func NewImageBlockFromFile(path, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockTypeImage, Source: &ImageSource{Type: "file", MediaType: mimeType, Path: path}}
}

func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewTextBlock(text)}}
}

func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewThinkingBlock(text)}}
}

// NewErrorChunk reports a stream problem; fatal 時串流中斷
func NewErrorChunk(message string, cause error, fatal bool) StreamChunk {
	return StreamChunk{
		ContentBlocks: []ContentBlock{{Type: BlockTypeError, Text: message}},
		Error:         &ChunkError{Message: message, Cause: cause, Fatal: fatal},
	}
}

func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{IsFinal: true, FinishReason: reason, Usage: usage}
}
