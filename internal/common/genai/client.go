package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	commonhttp "facility-search-workers/internal/common/http"
)

type Tier string

const (
	TierLow  Tier = "low"
	TierHigh Tier = "high"
)

var (
	ErrUnavailable   = errors.New("GENAI_UNAVAILABLE")
	ErrEmptyResponse = errors.New("GENAI_EMPTY_RESPONSE")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Tier        Tier
	Messages    []Message
	JSONMode    bool
	Temperature float64
	MaxTokens   int
}

// Generator is the text-generation boundary. Stages depend on this rather
// than on the HTTP client so tests can swap in a stub.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Config struct {
	BaseURL   string
	APIKey    string
	LowModel  string
	HighModel string
	Timeout   time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	config *Config
	http   *commonhttp.Client
}

func NewClient(config *Config) *Client {
	return &Client{
		config: config,
		http:   commonhttp.NewClient(config.Timeout),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (c *Client) Model(tier Tier) string {
	if tier == TierHigh && c.config.HighModel != "" {
		return c.config.HighModel
	}
	return c.config.LowModel
}

func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       c.Model(req.Tier),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	headers := map[string]string{}
	if c.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.config.APIKey
	}

	var resp chatResponse
	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	if err := c.http.PostJSON(ctx, url, headers, body, &resp); err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// unavailableError marks transport failures and 5xx/429 responses as
// retryable for resilience.Call.
type unavailableError struct {
	cause     error
	retryable bool
}

func (e *unavailableError) Error() string   { return fmt.Sprintf("%v: %v", ErrUnavailable, e.cause) }
func (e *unavailableError) Unwrap() error   { return ErrUnavailable }
func (e *unavailableError) Retryable() bool { return e.retryable }

func classify(err error) error {
	var statusErr *commonhttp.StatusError
	if errors.As(err, &statusErr) {
		retry := statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
		return &unavailableError{cause: err, retryable: retry}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &unavailableError{cause: err, retryable: true}
}
