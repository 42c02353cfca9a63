package chat

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/ai-image-editor/internal/imaging"
	"github.com/fpang/ai-image-editor/internal/overlay"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	models  []string
	configs []*genai.GenerateContentConfig

	resp      *genai.GenerateContentResponse
	err       error
	stream    []*genai.GenerateContentResponse
	streamErr error
}

func (f *fakeGenerator) record(model string, config *genai.GenerateContentConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.models = append(f.models, model)
	f.configs = append(f.configs, config)
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.record(model, config)
	return f.resp, f.err
}

func (f *fakeGenerator) GenerateContentStream(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.record(model, config)
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, chunk := range f.stream {
			if !yield(chunk, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield(nil, f.streamErr)
		}
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestClient(gen *fakeGenerator) *Client {
	c := NewClient(
		WithGeneratorFactory(func(context.Context, string) (ContentGenerator, error) { return gen, nil }),
		WithRateLimit(0, 0),
	)
	c.SetCredential("test-key")
	return c
}

func testImage() *imaging.Image {
	return &imaging.Image{Filename: "photo.jpg", MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0xe0}}
}

const analysisJSON = "```json\n" + `{
  "objects": ["dog", " park bench ", ""],
  "style": "casual outdoor photo",
  "issues": ["low contrast"],
  "description": "A dog sitting in a park.",
  "suggestions": [
    {"id": "bg", "label": "Remove clutter", "description": "Clean background", "category": "removal", "prompt": "Remove clutter from the background", "region": {"x": 0.8, "y": -0.1, "width": 0.5, "height": 0.4}},
    {"label": "Boost colors", "category": "Enhancement", "prompt": "Make the colors more vibrant"},
    {"id": "bg", "label": "Blur background", "category": "bokeh", "prompt": "Blur the background"},
    {"id": "empty", "label": "Nothing", "prompt": "  "}
  ]
}` + "\n```"

func TestAnalyzeNotConfigured(t *testing.T) {
	c := NewClient(WithGeneratorFactory(func(context.Context, string) (ContentGenerator, error) {
		t.Fatal("factory must not be called without a credential")
		return nil, nil
	}))
	if c.Configured() {
		t.Fatal("new client should not be configured")
	}
	if _, err := c.Analyze(context.Background(), testImage()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAnalyzeParsesAndNormalizes(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(analysisJSON)}
	c := newTestClient(gen)

	got, err := c.Analyze(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	want := &Analysis{
		Description: "A dog sitting in a park.",
		Objects:     []string{"dog", "park bench"},
		Style:       "casual outdoor photo",
		Issues:      []string{"low contrast"},
		Suggestions: []Suggestion{
			{ID: "bg", Label: "Remove clutter", Description: "Clean background", Category: CategoryRemoval,
				Instruction: "Remove clutter from the background", Region: &overlay.Region{X: 0.8, Y: 0, W: 0.19999999999999996, H: 0.4}},
			{ID: "suggestion_2", Label: "Boost colors", Category: CategoryEnhancement, Instruction: "Make the colors more vibrant"},
			{ID: "bg_2", Label: "Blur background", Category: CategoryEnhancement, Instruction: "Blur the background"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Analyze() mismatch (-want +got):\n%s", diff)
	}

	if gen.models[0] != ModelGemini25FlashLite {
		t.Errorf("model = %s, want %s", gen.models[0], ModelGemini25FlashLite)
	}
	cfg := gen.configs[0]
	if *cfg.Temperature != 0.3 || *cfg.TopP != 0.8 || *cfg.TopK != 40 {
		t.Errorf("unexpected sampling config: %v %v %v", *cfg.Temperature, *cfg.TopP, *cfg.TopK)
	}
}

func TestAnalyzeCachesByContent(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(analysisJSON)}
	c := newTestClient(gen)

	first, err := c.Analyze(context.Background(), testImage())
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Analyze(context.Background(), testImage())
	if err != nil {
		t.Fatal(err)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}
	if first != second {
		t.Error("expected the cached analysis to be returned")
	}
}

func TestAnalyzeMalformedResponse(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("I could not analyze this image, sorry.")}
	c := newTestClient(gen)

	_, err := c.Analyze(context.Background(), testImage())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if got := UserMessage(err); got != ErrMalformedResponse.Error() {
		t.Errorf("UserMessage() = %q", got)
	}
}

func TestAnalyzeEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	c := newTestClient(gen)
	if _, err := c.Analyze(context.Background(), testImage()); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestAnalyzeRateLimited(t *testing.T) {
	gen := &fakeGenerator{err: &genai.APIError{Code: 429, Message: "Too many requests"}}
	c := newTestClient(gen)

	_, err := c.Analyze(context.Background(), testImage())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := UserMessage(err); got != "Rate limit exceeded. Please wait a moment and try again." {
		t.Errorf("UserMessage() = %q", got)
	}
}

func TestClearCredential(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(analysisJSON)}
	c := newTestClient(gen)
	if !c.Configured() {
		t.Fatal("expected configured client")
	}
	c.ClearCredential()
	if c.Configured() {
		t.Fatal("expected credential to be cleared")
	}
	if _, err := c.GenerateEdit(context.Background(), testImage(), "brighten", DefaultConfig()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGenerateEditReturnsFirstImage(t *testing.T) {
	gen := &fakeGenerator{stream: []*genai.GenerateContentResponse{
		textResponse("Here is your edited image."),
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: []byte{0x89, 'P', 'N', 'G', 0, 1}}},
		}}}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: []byte{0xff}}},
		}}}}},
	}}
	c := newTestClient(gen)

	cfg := DefaultConfig()
	cfg.SafetyLevel = SafetyStrict
	got, err := c.GenerateEdit(context.Background(), testImage(), "  Remove clutter. ", cfg)
	if err != nil {
		t.Fatalf("GenerateEdit: %v", err)
	}
	if got != "data:image/png;base64,iVBORwAB" {
		t.Errorf("GenerateEdit() = %q", got)
	}
	if gen.models[0] != ModelGemini25FlashImage {
		t.Errorf("model = %s", gen.models[0])
	}
	if diff := cmp.Diff([]string{"IMAGE", "TEXT"}, gen.configs[0].ResponseModalities); diff != "" {
		t.Errorf("ResponseModalities mismatch (-want +got):\n%s", diff)
	}
	if len(gen.configs[0].SafetySettings) != 4 {
		t.Errorf("expected 4 safety settings, got %d", len(gen.configs[0].SafetySettings))
	}
}

func TestGenerateEditNoImage(t *testing.T) {
	gen := &fakeGenerator{stream: []*genai.GenerateContentResponse{textResponse("I can't edit this.")}}
	c := newTestClient(gen)

	_, err := c.GenerateEdit(context.Background(), testImage(), "make it pop", DefaultConfig())
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Failed to generate edited image") {
		t.Errorf("error = %q", err)
	}
}

func TestGenerateEditStreamError(t *testing.T) {
	gen := &fakeGenerator{streamErr: errors.New("googleapi: quota exceeded for project")}
	c := newTestClient(gen)

	_, err := c.GenerateEdit(context.Background(), testImage(), "make it pop", DefaultConfig())
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestEditWithInstructionsUsesConfig(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("1. Increase exposure by +0.3 EV.")}
	c := newTestClient(gen)

	cfg := DefaultConfig()
	cfg.ModelVersion = ModelGemini25Flash
	cfg.MaxOutputTokens = 1024
	got, err := c.EditWithInstructions(context.Background(), testImage(), "brighten the sky", cfg)
	if err != nil {
		t.Fatalf("EditWithInstructions: %v", err)
	}
	if got != "1. Increase exposure by +0.3 EV." {
		t.Errorf("got %q", got)
	}
	if gen.models[0] != ModelGemini25Flash {
		t.Errorf("model = %s", gen.models[0])
	}
	if gen.configs[0].MaxOutputTokens != 1024 {
		t.Errorf("MaxOutputTokens = %d", gen.configs[0].MaxOutputTokens)
	}
	if gen.configs[0].SafetySettings != nil {
		t.Error("default safety level should leave API defaults")
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(&fakeGenerator{resp: textResponse("hello")})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	c = newTestClient(&fakeGenerator{err: &genai.APIError{Code: 403, Message: "API key not valid"}})
	if err := c.Ping(context.Background()); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"429", &genai.APIError{Code: 429}, ErrRateLimited},
		{"429 quota", &genai.APIError{Code: 429, Message: "You exceeded your current quota"}, ErrQuotaExceeded},
		{"401", &genai.APIError{Code: 401}, ErrInvalidKey},
		{"400 key", &genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."}, ErrInvalidKey},
		{"503", &genai.APIError{Code: 503}, ErrServer},
		{"text rate limit", errors.New("rate limit reached"), ErrRateLimited},
		{"text quota", errors.New("quota exceeded"), ErrQuotaExceeded},
		{"dial", errors.New("dial tcp: lookup generativelanguage.googleapis.com: no such host"), ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	plain := errors.New("something else")
	if got := classify(plain); got != plain {
		t.Errorf("unclassified errors should pass through, got %v", got)
	}
	if got := classify(context.Canceled); got != context.Canceled {
		t.Errorf("cancellation should pass through, got %v", got)
	}
}
