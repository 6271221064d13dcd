package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AuthError indicates authentication/authorization failures (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 4xx request problem such as an oversized prompt.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// QuotaExceededError indicates billing/quota problems.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

// UnreachableError indicates the endpoint could not be reached at all.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// ServiceError wraps any failure of the completion service. The cause is
// kept verbatim and reachable through errors.As.
type ServiceError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s completion failed (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Describe returns a one-line, user-facing hint for a completion failure.
func Describe(err error) string {
	var (
		auth     *AuthError
		rate     *RateLimitError
		quota    *QuotaExceededError
		notFound *ModelNotFoundError
		bad      *BadRequestError
		server   *ServerError
		unreach  *UnreachableError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &auth):
		return "The provider rejected the credentials. Check api_key / gemini_api_key (or TABLECHAT_API_KEY / TABLECHAT_GEMINI_API_KEY)."
	case errors.As(err, &rate):
		if rate.RetryAfter > 0 {
			return fmt.Sprintf("The provider is rate limiting requests. Try again in about %ds.", int(rate.RetryAfter.Seconds()))
		}
		return "The provider is rate limiting requests. Wait a moment and try again."
	case errors.As(err, &quota):
		return "The account quota or billing limit is exhausted."
	case errors.As(err, &notFound):
		return "The model is not available. Check --model or default_model."
	case errors.As(err, &bad):
		return "The provider rejected the request. Large datasets can produce prompts beyond the model's input limit; try --strategy sample or fewer --sample-rows."
	case errors.As(err, &server):
		return "The provider had an internal error. Try again later."
	case errors.As(err, &unreach):
		return "The completion endpoint could not be reached. Check your network or ollama_host."
	default:
		return "The completion service failed."
	}
}

// classifyAPIError maps a generic APIError to a typed error.
func classifyAPIError(apiErr *APIError, header http.Header) error {
	sc := apiErr.StatusCode
	msg := apiErr.Message
	code := apiErr.Code
	switch {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		if code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing") {
			return &QuotaExceededError{APIError: apiErr}
		}
		var ra time.Duration
		if v := header.Get("Retry-After"); v != "" {
			if d, err := parseRetryAfter(v); err == nil {
				ra = d
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	case sc == http.StatusNotFound:
		if code == "model_not_found" || containsAllFold(msg, "model", "not", "found") {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	case sc == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing", "limit exceeded"):
		return &QuotaExceededError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func containsAllFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if !containsFold(s, sub) {
			return false
		}
	}
	return true
}

func containsAnyFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	if s == "" || sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
