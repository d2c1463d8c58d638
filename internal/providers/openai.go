package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint
// (OpenRouter by default) under a RetryPolicy.
type OpenAIProvider struct {
	apiKey       string
	apiBase      string
	model        string
	temperature  float64
	maxTokens    int
	extraHeaders map[string]string
	retry        RetryPolicy
	httpClient   *http.Client
}

// NewOpenAIProvider builds a provider from p as given; see New for defaults.
func NewOpenAIProvider(p Params) *OpenAIProvider {
	dialer := &net.Dialer{Timeout: p.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: p.ConnectTimeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &OpenAIProvider{
		apiKey:       p.APIKey,
		apiBase:      strings.TrimRight(p.APIBase, "/"),
		model:        p.Model,
		temperature:  p.Temperature,
		maxTokens:    p.MaxTokens,
		extraHeaders: p.ExtraHeaders,
		retry:        p.Retry,
		httpClient:   &http.Client{Transport: transport, Timeout: p.Timeout},
	}
}

func (p *OpenAIProvider) Model() string   { return p.model }
func (p *OpenAIProvider) APIBase() string { return p.apiBase }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// chatResponse is the subset of the completion response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements Completer. An answer without choices yields
// NoResponseText; failures are returned as *Error.
func (p *OpenAIProvider) Complete(ctx context.Context, messages schema.Messages) (string, error) {
	body, err := json.Marshal(p.buildRequest(messages))
	if err != nil {
		return "", &Error{Kind: KindUnknown, Err: fmt.Errorf("marshal request: %w", err)}
	}
	slog.Debug("provider: sending completion", "model", p.model, "messages", len(messages))

	var reply string
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		raw, err := p.post(ctx, body)
		if err != nil {
			return err
		}
		reply, err = parseResponse(raw)
		return err
	})
	if err != nil {
		return "", err
	}
	slog.Debug("provider: reply received", "chars", len(reply))
	return reply, nil
}

func (p *OpenAIProvider) buildRequest(messages schema.Messages) chatRequest {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return chatRequest{
		Model:       p.model,
		Messages:    wire,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      false,
	}
}

func (p *OpenAIProvider) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(raw)}
	}
	return raw, nil
}

func parseResponse(raw []byte) (string, error) {
	var body chatResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", &Error{Kind: KindParse, Err: err}
	}
	if len(body.Choices) == 0 {
		slog.Warn("provider: response had no choices", "body", truncateBody(raw))
		return NoResponseText, nil
	}
	c := body.Choices[0].Message.Content
	if c == nil {
		return "", &Error{Kind: KindParse, Err: fmt.Errorf("choices[0].message.content missing")}
	}
	return *c, nil
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
