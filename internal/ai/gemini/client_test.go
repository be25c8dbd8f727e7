package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type callResult struct {
	resp *genai.GenerateContentResponse
	err  error
}

// stubGenerator builds a Generator whose API calls pop from a fixed queue.
func stubGenerator(maxRetries int, results ...callResult) (*Generator, *[]string) {
	prompts := &[]string{}
	queue := results

	return &Generator{
		call: func(_ context.Context, _ string, prompt string) (*genai.GenerateContentResponse, error) {
			*prompts = append(*prompts, prompt)
			if len(queue) == 0 {
				return nil, errors.New("unexpected call")
			}
			res := queue[0]
			queue = queue[1:]
			return res.resp, res.err
		},
		modelName:  defaultModel,
		maxRetries: maxRetries,
		baseDelay:  time.Nanosecond,
		logger:     zap.NewNop(),
	}, prompts
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func TestGenerateContentRetriesOnServerError(t *testing.T) {
	gen, prompts := stubGenerator(2,
		callResult{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}},
		callResult{resp: textResponse("Name: X\nDescription: Y")},
	)

	got, err := gen.GenerateContent(context.Background(), "label this cluster")
	if err != nil {
		t.Fatalf("GenerateContent() = %v", err)
	}
	if got != "Name: X\nDescription: Y" {
		t.Fatalf("GenerateContent() = %q", got)
	}
	if len(*prompts) != 2 {
		t.Fatalf("made %d calls, want 2", len(*prompts))
	}
}

func TestGenerateContentRetriesOnRateLimit(t *testing.T) {
	gen, prompts := stubGenerator(1,
		callResult{err: genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}},
		callResult{resp: textResponse("ok")},
	)

	if _, err := gen.GenerateContent(context.Background(), "prompt"); err != nil {
		t.Fatalf("GenerateContent() = %v", err)
	}
	if len(*prompts) != 2 {
		t.Fatalf("made %d calls, want 2", len(*prompts))
	}
}

func TestGenerateContentDoesNotRetryClientErrors(t *testing.T) {
	gen, prompts := stubGenerator(3,
		callResult{err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}},
	)

	if _, err := gen.GenerateContent(context.Background(), "prompt"); err == nil {
		t.Fatal("GenerateContent() accepted a client error")
	}
	if len(*prompts) != 1 {
		t.Fatalf("made %d calls, want 1", len(*prompts))
	}
}

func TestGenerateContentRetriesEmptyResponse(t *testing.T) {
	gen, prompts := stubGenerator(1,
		callResult{resp: &genai.GenerateContentResponse{}},
		callResult{resp: textResponse("eventually")},
	)

	got, err := gen.GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateContent() = %v", err)
	}
	if got != "eventually" {
		t.Fatalf("GenerateContent() = %q", got)
	}
	if len(*prompts) != 2 {
		t.Fatalf("made %d calls, want 2", len(*prompts))
	}
}

func TestGenerateContentExhaustsRetryBudget(t *testing.T) {
	serverErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	gen, prompts := stubGenerator(2,
		callResult{err: serverErr},
		callResult{err: serverErr},
		callResult{err: serverErr},
	)

	_, err := gen.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("GenerateContent() succeeded after exhausting retries")
	}
	if !strings.Contains(err.Error(), "after 2 retries") {
		t.Fatalf("error = %v, want retry budget mentioned", err)
	}
	if len(*prompts) != 3 {
		t.Fatalf("made %d calls, want 3", len(*prompts))
	}
}

func TestGenerateContentStopsOnCancelledContext(t *testing.T) {
	gen, prompts := stubGenerator(5,
		callResult{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}},
	)
	gen.baseDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.GenerateContent(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("GenerateContent() = %v, want context.Canceled", err)
	}
	if len(*prompts) != 1 {
		t.Fatalf("made %d calls, want 1", len(*prompts))
	}
}

func TestGenerateContentRejectsEmptyPrompt(t *testing.T) {
	gen, _ := stubGenerator(0, callResult{resp: textResponse("unused")})
	if _, err := gen.GenerateContent(context.Background(), "   "); err == nil {
		t.Fatal("GenerateContent() accepted an empty prompt")
	}
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "  ", "", 1, zap.NewNop()); err == nil {
		t.Fatal("NewGenerator() accepted an empty api key")
	}
}

func TestRetryable(t *testing.T) {
	if !retryable(genai.APIError{Code: 500}) || !retryable(genai.APIError{Code: 429}) {
		t.Fatal("server errors and rate limits must be retryable")
	}
	if retryable(genai.APIError{Code: 404}) {
		t.Fatal("client errors must not be retryable")
	}
	if retryable(errors.New("plain error")) {
		t.Fatal("non-api errors must not be retryable")
	}
}

func TestCollectText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			nil,
			{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "first"},
				nil,
				{Text: "  "},
				{Text: "second"},
			}}},
		},
	}

	if got := collectText(resp); got != "first\nsecond" {
		t.Fatalf("collectText() = %q, want %q", got, "first\nsecond")
	}
	if got := collectText(nil); got != "" {
		t.Fatalf("collectText(nil) = %q, want empty", got)
	}
}

func TestModel(t *testing.T) {
	gen, _ := stubGenerator(0)
	if gen.Model() != defaultModel {
		t.Fatalf("Model() = %q, want %q", gen.Model(), defaultModel)
	}

	var nilGen *Generator
	if nilGen.Model() != "" {
		t.Fatal("nil generator should report an empty model")
	}
}
