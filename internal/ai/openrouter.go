package ai

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterClient talks to the OpenRouter chat completions API.
type OpenRouterClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	retry      retryPolicy
}

// NewOpenRouterClient returns a client with the given timeout and retry policy.
func NewOpenRouterClient(apiKey string, httpTimeout time.Duration, retry retryPolicy) *OpenRouterClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retry.Attempts <= 0 {
		retry = newRetryPolicy(0, 0, 0, 3, 500*time.Millisecond, 4*time.Second)
	}
	return &OpenRouterClient{
		httpClient: &http.Client{Timeout: httpTimeout},
		apiKey:     apiKey,
		baseURL:    openRouterURL,
		retry:      retry,
	}
}

func (c *OpenRouterClient) newRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://github.com/KaramelBytes/tablechat-cli")
	req.Header.Set("X-Title", "tablechat")
	return req, nil
}

func (c *OpenRouterClient) check(req GenerateRequest) error {
	if c.apiKey == "" {
		return errors.New("OpenRouter API key is missing (set api_key or TABLECHAT_API_KEY)")
	}
	if req.Model == "" {
		return errors.New("model cannot be empty")
	}
	return nil
}

// Generate sends a non-streaming chat request, retrying 429/5xx responses
// and transient network errors.
func (c *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		httpReq, err := c.newRequest(ctx, payload)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && attempt < c.retry.Attempts {
				lastErr = err
				if err := sleep(ctx, c.retry.delay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &UnreachableError{Host: c.baseURL, Err: err}
		}

		out, wait, err := c.readResponse(resp, attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if wait < 0 {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// readResponse decodes one HTTP response. A non-negative wait means the
// caller should retry after that delay.
func (c *OpenRouterClient) readResponse(resp *http.Response, attempt int) (*GenerateResponse, time.Duration, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := readAPIError(resp)
		if retryableStatus(resp.StatusCode) && attempt < c.retry.Attempts {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if d, err := parseRetryAfter(ra); err == nil && d > 0 {
					return nil, d, &RateLimitError{APIError: apiErr, RetryAfter: d}
				}
			}
			return nil, c.retry.delay(attempt), apiErr
		}
		return nil, -1, classifyAPIError(apiErr, resp.Header)
	}
	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, -1, fmt.Errorf("decode response: %w", err)
	}
	out.RequestID = extractRequestID(resp)
	return &out, 0, nil
}

// GenerateStream streams content using OpenRouter's SSE stream.
func (c *OpenRouterClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if err := c.check(req); err != nil {
		return err
	}
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   true,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, b)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &UnreachableError{Host: c.baseURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyAPIError(readAPIError(resp), resp.Header)
	}

	type streamDelta struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var d streamDelta
		if err := json.Unmarshal([]byte(data), &d); err == nil && len(d.Choices) > 0 {
			onDelta(d.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}
