package llm

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop     = "stop"      // Normal completion
	StopReasonLength   = "length"    // Output truncated due to token limit
	StopReasonToolCall = "tool_call" // Model asked for a function call instead of text
)

// ContentBlock Type constants define the supported content block formats
// used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Internal reasoning/chain-of-thought
	BlockTypeImage    = "image"    // Binary image data
	BlockTypeError    = "error"    // Error message displayed to user
)

// Provider message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Speaker labels used when a conversation is rendered as a transcript.
const (
	HumanLabel = "Human"
	AILabel    = "AI"
)

// ImagePlaceholder stands in for an image when content is flattened to text.
const ImagePlaceholder = "<Image>"

// debugContextKey is the type of DebugDirContextKey.
type debugContextKey string

// DebugDirContextKey carries the per-request debug id through a context.
// Chunk dumps nest their dump files under it and the log handler
// prints it next to every record.
const DebugDirContextKey debugContextKey = "llm_debug_dir"
