package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when the gemini provider has no model set.
const DefaultGeminiModel = "gemini-2.0-flash-lite"

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      retryPolicy

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a client. The SDK client is built on first use.
func NewGeminiClient(apiKey, baseURL string, httpTimeout time.Duration, retry retryPolicy) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retry.Attempts <= 0 {
		retry = newRetryPolicy(0, 0, 0, 3, 500*time.Millisecond, 4*time.Second)
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: httpTimeout},
		retry:      retry,
	}
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, errors.New("Gemini API key is missing (set gemini_api_key or TABLECHAT_GEMINI_API_KEY)")
	}
	cfg := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	cl, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.client = cl
	return cl, nil
}

// geminiContents splits system messages into the system instruction and maps the
// remaining roles onto Gemini's user/model roles.
func geminiContents(msgs []Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
}

// Generate sends one generateContent call, retrying 429/5xx answers.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	model := req.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	cl, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}
	contents, system := geminiContents(req.Messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		resp, err := cl.Models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			return geminiResponse(resp)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = classifyGeminiError(err)
		var apiErr genai.APIError
		if !errors.As(err, &apiErr) || !retryableStatus(apiErr.Code) || attempt == c.retry.Attempts {
			break
		}
		if err := sleep(ctx, c.retry.delay(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func geminiResponse(resp *genai.GenerateContentResponse) (*GenerateResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("gemini returned no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned an empty candidate (finish reason %s)", cand.FinishReason)
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		b.WriteString(p.Text)
	}
	out := &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: b.String()}}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// classifyGeminiError maps SDK errors onto the shared error types.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return &UnreachableError{Host: "generativelanguage.googleapis.com", Err: err}
	}
	base := &APIError{StatusCode: apiErr.Code, Code: apiErr.Status, Message: apiErr.Message}
	if apiErr.Status == "RESOURCE_EXHAUSTED" && containsAnyFold(apiErr.Message, "quota", "billing") {
		return &QuotaExceededError{APIError: base}
	}
	if apiErr.Code == http.StatusNotFound {
		return &ModelNotFoundError{APIError: base}
	}
	return classifyAPIError(base, http.Header{})
}
