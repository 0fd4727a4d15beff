package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"nimbus/internal/domain"
	"nimbus/internal/retry"
)

// systemPrompt frames the assistant for the weather demo.
const systemPrompt = "You are a helpful weather assistant. When users ask about weather, use the get_weather tool to get current conditions."

// placeholderKey is the unconfigured value from the sample .env; treated the
// same as an absent credential.
const placeholderKey = "your_groq_key_here"

// GroqBackend calls an OpenAI-compatible chat-completions endpoint with the
// tool catalog attached. It is the primary backend in the fallback chain: any
// structural failure (no credential, non-2xx, timeout, unparsable payload)
// becomes a Declined outcome so the selector can fall through.
type GroqBackend struct {
	cfg     domain.BackendConfig
	client  *http.Client
	retrier *retry.Retrier
	logger  *slog.Logger

	lookupEnv   func(string) string                // for testing
	marshalFunc func(v interface{}) ([]byte, error) // for testing
}

// NewGroqBackend returns a backend for the given config. retrier may be nil to
// disable retries; logger may be nil to use the default.
func NewGroqBackend(cfg domain.BackendConfig, retrier *retry.Retrier, logger *slog.Logger) *GroqBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroqBackend{
		cfg:         cfg,
		client:      &http.Client{},
		retrier:     retrier,
		logger:      logger,
		lookupEnv:   os.Getenv,
		marshalFunc: json.Marshal,
	}
}

// Name implements domain.Backend.
func (b *GroqBackend) Name() string { return "groq" }

// =============================================================================
// Wire types (OpenAI-compatible chat completions)
// =============================================================================

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Tools     []toolSchema  `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolSchema struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// =============================================================================
// Attempt
// =============================================================================

// Attempt implements domain.Backend. The completion round trip is the single
// blocking network operation of a turn and is bounded by the configured timeout;
// exceeding it declines rather than fails.
func (b *GroqBackend) Attempt(ctx context.Context, message string, history []domain.Turn, catalog *domain.Catalog) domain.Outcome {
	key := b.lookupEnv(b.cfg.APIKeyEnv)
	if key == "" || key == placeholderKey {
		return domain.Declined(fmt.Sprintf("credential %s not set", b.cfg.APIKeyEnv))
	}

	req := chatRequest{
		Model:     b.cfg.Model,
		Messages:  buildMessages(message, history),
		Tools:     toolSchemas(catalog),
		MaxTokens: b.cfg.MaxTokens,
	}

	resp, err := b.complete(ctx, key, req)
	if err != nil {
		b.logger.Warn("completion failed, backend declining", "error", err)
		return domain.Declined(err.Error())
	}

	return b.interpret(resp, catalog)
}

// complete posts the request, retrying transient failures when a retrier is set.
func (b *GroqBackend) complete(ctx context.Context, key string, req chatRequest) (*chatResponse, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(b.cfg.Timeout)*time.Millisecond)
		defer cancel()
	}

	var resp *chatResponse
	op := func() error {
		var opErr error
		resp, opErr = b.post(ctx, key, req)
		return opErr
	}
	if b.retrier == nil {
		if err := op(); err != nil {
			return nil, err
		}
		return resp, nil
	}
	if err := b.retrier.Do(ctx, op); err != nil {
		return nil, err
	}
	return resp, nil
}

func (b *GroqBackend) post(ctx context.Context, key string, body chatRequest) (*chatResponse, error) {
	raw, err := b.marshalFunc(body)
	if err != nil {
		return nil, fmt.Errorf("groq marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("groq request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("groq do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq api: %s", resp.Status)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("groq decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("groq: no choices in response")
	}
	return &out, nil
}

// interpret maps the completion into an outcome. A tool call naming a tool
// absent from the catalog, or missing a required parameter, declines so the
// selector can fall through to the rule extractor.
func (b *GroqBackend) interpret(resp *chatResponse, catalog *domain.Catalog) domain.Outcome {
	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) == 0 {
		if msg.Content == "" {
			return domain.Declined("empty completion")
		}
		return domain.Answered(msg.Content)
	}

	call := msg.ToolCalls[0]
	descriptor, ok := catalog.Get(call.Function.Name)
	if !ok {
		return domain.Declined(fmt.Sprintf("model named unknown tool %q", call.Function.Name))
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return domain.Declined(fmt.Sprintf("unparsable tool arguments: %v", err))
	}

	for _, param := range descriptor.RequiredParams() {
		if _, present := args[param]; !present {
			return domain.Declined(fmt.Sprintf("tool call %s missing required parameter %q", call.Function.Name, param))
		}
	}

	return domain.ResolvedToolCall(&domain.ToolCallRequest{
		Name:      call.Function.Name,
		Arguments: args,
		CallID:    call.ID,
	})
}

// =============================================================================
// FollowUp
// =============================================================================

// FollowUp sends the tool result back to the model for a natural-language
// summary, mirroring the second completion of the original flow. Tools are
// stripped from the follow-up request. Callers fall back to the template
// formatter when this errors.
func (b *GroqBackend) FollowUp(ctx context.Context, message string, history []domain.Turn, req *domain.ToolCallRequest, result domain.ToolResult) (string, error) {
	key := b.lookupEnv(b.cfg.APIKeyEnv)
	if key == "" || key == placeholderKey {
		return "", fmt.Errorf("credential %s not set", b.cfg.APIKeyEnv)
	}

	argsJSON, err := json.Marshal(req.Arguments)
	if err != nil {
		return "", fmt.Errorf("marshal arguments: %w", err)
	}
	resultJSON, err := json.Marshal(result.Fields)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	assistant := chatMessage{Role: "assistant"}
	tc := toolCall{ID: req.CallID, Type: "function"}
	tc.Function.Name = req.Name
	tc.Function.Arguments = string(argsJSON)
	assistant.ToolCalls = []toolCall{tc}

	messages := append(buildMessages(message, history),
		assistant,
		chatMessage{Role: "tool", ToolCallID: req.CallID, Content: string(resultJSON)},
	)

	resp, err := b.complete(ctx, key, chatRequest{
		Model:     b.cfg.Model,
		Messages:  messages,
		MaxTokens: b.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("groq: empty follow-up completion")
	}
	return content, nil
}

// =============================================================================
// Helpers
// =============================================================================

// buildMessages assembles the wire messages: system prompt, prior turns, then
// the current user message.
func buildMessages(message string, history []domain.Turn) []chatMessage {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	return append(messages, chatMessage{Role: "user", Content: message})
}

// toolSchemas converts the catalog snapshot into the function-calling tools array.
func toolSchemas(catalog *domain.Catalog) []toolSchema {
	if catalog == nil || catalog.Len() == 0 {
		return nil
	}
	out := make([]toolSchema, 0, catalog.Len())
	for _, d := range catalog.Descriptors() {
		out = append(out, toolSchema{
			Type: "function",
			Function: functionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}

var _ domain.Backend = (*GroqBackend)(nil)
