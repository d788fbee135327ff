package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reasoner/pkg/llm"
)

// DefaultDescription is how the Reasoner introduces itself to the rest of a team.
const DefaultDescription = "A highly capable AI assistant specializing in mathematical reasoning, logical deduction, and complex problem-solving. It excels in scenarios that require strong reasoning abilities."

// promptPreamble precedes the rendered conversation in every request.
const promptPreamble = "You are a highly capable AI assistant specializing in mathematical reasoning, logical deduction, and complex problem-solving. Your task is to analyze the given context and question, then provide a well-reasoned answer. Remember that you don't have access to external data or resources, so use only the information provided in the context and your inherent knowledge.\n\n" +
	"If you encounter a precise mathematical calculation problem, you can generate a code snippet to solve it. This code will be executed by other workers. Ensure the code is clear, concise, and solves the specific calculation needed.\n\n" +
	"Context and Question:\n"

// Replier produces the next turn of a conversation.
type Replier interface {
	Description() string
	GenerateReply(ctx context.Context, history []llm.ChatMessage) (isFinal bool, content string, err error)
}

// Reasoner answers by rendering the whole conversation into a single prompt
// and asking the model client for one completion. It holds no conversation
// state of its own.
type Reasoner struct {
	client      llm.ChatCompletionClient
	description string
}

// ReasonerOption configures a Reasoner.
type ReasonerOption func(*Reasoner)

// WithDescription overrides DefaultDescription. Empty values are ignored.
func WithDescription(desc string) ReasonerOption {
	return func(r *Reasoner) {
		if desc != "" {
			r.description = desc
		}
	}
}

// NewReasoner creates a Reasoner backed by client.
func NewReasoner(client llm.ChatCompletionClient, opts ...ReasonerOption) *Reasoner {
	r := &Reasoner{
		client:      client,
		description: DefaultDescription,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Replier = (*Reasoner)(nil)

// Description returns the text other agents see for this worker.
func (r *Reasoner) Description() string {
	return r.description
}

// BuildPrompt renders the preamble followed by one line per history entry.
func (r *Reasoner) BuildPrompt(history []llm.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString(promptPreamble)
	for _, msg := range history {
		sb.WriteString(msg.PromptLine())
		sb.WriteString("\n")
	}
	return sb.String()
}

// GenerateReply asks the model for the next turn. The first return value is
// always false: the Reasoner never ends a conversation on its own.
func (r *Reasoner) GenerateReply(ctx context.Context, history []llm.ChatMessage) (bool, string, error) {
	prompt := r.BuildPrompt(history)

	result, err := r.client.Create(ctx, []llm.ChatMessage{llm.NewUserText(prompt, llm.HumanLabel)})
	// 取消優先：即使 Create 已經拿到結果也丟棄
	if ctxErr := ctx.Err(); ctxErr != nil {
		if err == nil {
			err = ctxErr
		}
		return false, "", fmt.Errorf("reasoner: reply cancelled: %w", err)
	}
	if err != nil {
		return false, "", fmt.Errorf("reasoner: model call failed: %w", err)
	}

	if result == nil {
		return false, "", &ContractViolationError{Reason: "nil completion result"}
	}
	if !result.IsText() {
		slog.WarnContext(ctx, "Model returned function calls instead of text", "calls", len(result.FunctionCalls))
		return false, "", &ContractViolationError{
			Reason:        "expected text content",
			FunctionCalls: result.FunctionCalls,
		}
	}

	if result.Usage != nil {
		slog.DebugContext(ctx, "Reasoner reply", "chars", len(result.Text), "tokens", result.Usage.TotalTokens)
	}
	return false, result.Text, nil
}
