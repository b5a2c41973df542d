package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/metrics"
)

// ErrNoResult is returned by a single attempt that produced nothing usable.
var ErrNoResult = errors.New("llm: no usable result")

// attempts is the first call plus one retry.
const attempts = 2

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

// Validator is implemented by response schemas that check themselves after decoding.
type Validator interface {
	Validate() error
}

type CallOptions struct {
	// Schema names the response type in logs and metrics.
	Schema      string
	MaxTokens   int
	Temperature float64
}

// Client is a structured-extraction service. Call decodes the model's JSON
// answer into out and reports whether it succeeded; a false result means
// "no signal", never an error the caller has to handle.
type Client interface {
	Call(ctx context.Context, messages []Message, out any, opts CallOptions) bool
}

// HTTPClient speaks the OpenAI-compatible chat completions protocol.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewHTTPClient(cfg config.LLMConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.Logger,
	}
}

// WithLogger returns a copy of the client that logs through logger.
func (c *HTTPClient) WithLogger(logger zerolog.Logger) *HTTPClient {
	clone := *c
	clone.logger = logger
	return &clone
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) Call(ctx context.Context, messages []Message, out any, opts CallOptions) bool {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		c.logger.Error().Str("schema", opts.Schema).Msg("LLM call needs a non-nil pointer")
		return false
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		target.Elem().Set(reflect.Zero(target.Elem().Type()))

		started := time.Now()
		err := c.attempt(ctx, messages, out, opts)
		if err == nil {
			metrics.ObserveLLMCall(opts.Schema, "ok", started)
			return true
		}
		metrics.ObserveLLMCall(opts.Schema, "error", started)
		c.logger.Warn().Err(err).Str("schema", opts.Schema).Int("attempt", attempt).Msg("Structured LLM call failed")

		if ctx.Err() != nil {
			break
		}
	}
	return false
}

func (c *HTTPClient) attempt(ctx context.Context, messages []Message, out any, opts CallOptions) error {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    opts.Temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decoding chat response: %w", err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("chat endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return ErrNoResult
	}

	content := StripCodeFence(parsed.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decoding %s: %w", opts.Schema, err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validating %s: %w", opts.Schema, err)
		}
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
