package gemini

import (
	"context"
	"errors"
	"iter"
	"testing"

	"reasoner/pkg/llm"

	"google.golang.org/genai"
)

type stubModels struct {
	responses []*genai.GenerateContentResponse
	err       error
	gotModel  string
	gotConfig *genai.GenerateContentConfig
	gotInput  []*genai.Content
}

func (s *stubModels) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	s.gotModel = model
	s.gotConfig = config
	s.gotInput = contents
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		if s.err != nil {
			yield(nil, s.err)
			return
		}
		for _, r := range s.responses {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func textResponse(text string, thought bool) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text, Thought: thought}}},
		}},
	}
}

func TestStreamChat_Text(t *testing.T) {
	final := textResponse("", false)
	final.Candidates[0].FinishReason = genai.FinishReasonStop
	final.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 1, TotalTokenCount: 8}

	stub := &stubModels{responses: []*genai.GenerateContentResponse{
		textResponse("adding", true),
		textResponse("4", false),
		final,
	}}
	g := &GeminiClient{models: stub, model: "gemini-test", useThought: true}

	ch, err := g.StreamChat(context.Background(), []llm.Message{
		llm.NewSystemMessage("be brief"),
		llm.NewTextMessage(llm.RoleUser, "What is 2+2?"),
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	res, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Text != "4" || res.Thought != "adding" {
		t.Fatalf("result = %+v", res)
	}
	if res.FinishReason != llm.StopReasonStop || res.Usage == nil || res.Usage.TotalTokens != 8 {
		t.Fatalf("result = %+v", res)
	}

	if stub.gotModel != "gemini-test" {
		t.Fatalf("model = %q", stub.gotModel)
	}
	if stub.gotConfig.SystemInstruction == nil || stub.gotConfig.ThinkingConfig == nil {
		t.Fatalf("config = %+v", stub.gotConfig)
	}
	if len(stub.gotInput) != 1 || stub.gotInput[0].Role != genai.RoleUser {
		t.Fatalf("input = %+v", stub.gotInput)
	}
}

func TestStreamChat_FunctionCall(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{
			FunctionCall: &genai.FunctionCall{Name: "python", Args: map[string]any{"code": "print(4)"}},
		}}},
	}}}
	g := &GeminiClient{models: &stubModels{responses: []*genai.GenerateContentResponse{resp}}, model: "m"}

	ch, err := g.StreamChat(context.Background(), nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	res, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.IsText() || res.FunctionCalls[0].Name != "python" {
		t.Fatalf("result = %+v", res)
	}
}

func TestStreamChat_StartError(t *testing.T) {
	boom := errors.New("googleapi: Error 503: overloaded")
	g := &GeminiClient{models: &stubModels{err: boom}, model: "m"}

	_, err := g.StreamChat(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
	if !g.IsTransientError(err) {
		t.Fatalf("503 should be transient")
	}
}

func TestConvertMessages_RolesAndImages(t *testing.T) {
	g := &GeminiClient{}
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: []llm.ContentBlock{
			llm.NewTextBlock("what is this"),
			llm.NewImageBlock([]byte{0x89, 0x50}, "image/png"),
			llm.NewTextBlock(""),
		}},
		llm.NewTextMessage(llm.RoleAssistant, "a chart"),
	}
	contents, sys := g.convertMessages(msgs)
	if sys != nil {
		t.Fatalf("unexpected system instruction")
	}
	if len(contents) != 2 || contents[1].Role != genai.RoleModel {
		t.Fatalf("contents = %+v", contents)
	}
	if len(contents[0].Parts) != 2 || contents[0].Parts[1].InlineData == nil {
		t.Fatalf("parts = %+v", contents[0].Parts)
	}
}

func TestIsTransientError(t *testing.T) {
	g := &GeminiClient{}
	for msg, want := range map[string]bool{
		"Error 429: RESOURCE EXHAUSTED": true,
		"500 internal error":            true,
		"400 invalid argument":          false,
	} {
		if got := g.IsTransientError(errors.New(msg)); got != want {
			t.Errorf("IsTransientError(%q) = %v", msg, got)
		}
	}
	if g.IsTransientError(nil) {
		t.Error("nil is not transient")
	}
}
