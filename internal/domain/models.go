package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// =============================================================================
// Core Configuration
// =============================================================================

type Config struct {
	Server  ServerConfig  `json:"server"`
	Backend BackendConfig `json:"backend"`
	Chat    ChatConfig    `json:"chat"`
	Infra   InfraConfig   `json:"infra"`
	Retry   RetryConfig   `json:"retry"`
}

// ServerConfig describes the MCP tool server the client connects to.
type ServerConfig struct {
	URL            string `json:"url"`            // streamable HTTP endpoint, e.g. http://localhost:8000/mcp
	ConnectTimeout int    `json:"connectTimeout"` // milliseconds
	InvokeTimeout  int    `json:"invokeTimeout"`  // milliseconds
}

// BackendConfig describes the hosted reasoning backend (OpenAI-compatible chat completions).
type BackendConfig struct {
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKeyEnv string `json:"apiKeyEnv"` // env var holding the bearer credential
	Timeout   int    `json:"timeout"`   // milliseconds, bounds the completion round trip
	MaxTokens int    `json:"maxTokens"`
	RulesPath string `json:"rulesPath,omitempty"` // optional override for the extractor rule table
}

// ChatConfig controls the conversation loop.
type ChatConfig struct {
	HistoryWindow int `json:"historyWindow"` // turns of history sent to the backend (0 = all)
}

type InfraConfig struct {
	LogFormat string `json:"logFormat"` // "json" | "text"
	LogLevel  string `json:"logLevel"`
}

// RetryConfig controls retry behaviour for external API calls.
type RetryConfig struct {
	MaxRetries     int `json:"maxRetries"`     // Maximum retry attempts (0 = no retries)
	InitialBackoff int `json:"initialBackoff"` // Initial backoff in milliseconds
	MaxBackoff     int `json:"maxBackoff"`     // Maximum backoff in milliseconds
	Multiplier     int `json:"multiplier"`     // Backoff multiplier (e.g. 2 for exponential doubling)
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrConnection indicates the tool session transport could not be established.
	// Fatal when it occurs during the startup catalog fetch.
	ErrConnection = errors.New("tool session unreachable")

	// ErrProtocol indicates the remote returned a malformed descriptor set
	// (missing name, duplicate name, unparsable schema). Fatal at startup.
	ErrProtocol = errors.New("malformed tool catalog")

	// ErrUnknownTool indicates a resolved tool call names a tool absent from the
	// current catalog snapshot.
	ErrUnknownTool = errors.New("unknown tool")
)

// =============================================================================
// Tool Catalog
// =============================================================================

// ToolDescriptor describes one remotely invocable tool. Immutable once fetched;
// the catalog is refreshed only on session (re)connect.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// RequiredParams returns the schema's "required" parameter names, or nil when
// the schema is absent or carries none.
func (d ToolDescriptor) RequiredParams() []string {
	var shape struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(d.InputSchema, &shape); err != nil {
		return nil
	}
	return shape.Required
}

// Catalog is an ordered, read-only snapshot of tool descriptors keyed by name.
type Catalog struct {
	descriptors []ToolDescriptor
	byName      map[string]int
}

// NewCatalog validates descriptors and builds a snapshot. Empty or duplicate
// names wrap ErrProtocol.
func NewCatalog(descriptors []ToolDescriptor) (*Catalog, error) {
	c := &Catalog{
		descriptors: make([]ToolDescriptor, 0, len(descriptors)),
		byName:      make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: descriptor with empty name", ErrProtocol)
		}
		if _, exists := c.byName[d.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate tool %q", ErrProtocol, d.Name)
		}
		c.byName[d.Name] = len(c.descriptors)
		c.descriptors = append(c.descriptors, d)
	}
	return c, nil
}

// Get returns the descriptor with the given name.
func (c *Catalog) Get(name string) (ToolDescriptor, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.descriptors[i], true
}

// Has reports whether a tool with the given name exists in the snapshot.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Descriptors returns the descriptors in fetch order. Callers must not mutate.
func (c *Catalog) Descriptors() []ToolDescriptor {
	return c.descriptors
}

// Names returns the tool names in fetch order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.descriptors))
	for i, d := range c.descriptors {
		out[i] = d.Name
	}
	return out
}

// Len returns the number of tools in the snapshot.
func (c *Catalog) Len() int { return len(c.descriptors) }

// =============================================================================
// Conversation
// =============================================================================

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation history. Append-only; never mutated
// after append.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// Tool Invocation
// =============================================================================

// ToolCallRequest is a resolved tool invocation. Produced by a backend,
// consumed exactly once by the dispatcher. CallID is the provider-assigned id
// when the model produced the call; empty for rule-extracted requests.
type ToolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	CallID    string         `json:"-"`
}

// FailureKind classifies a failed tool invocation.
type FailureKind string

const (
	FailNone        FailureKind = ""           // success
	FailTransport   FailureKind = "transport"  // session-level failure reaching the server
	FailRemote      FailureKind = "remote"     // well-formed error response from the tool
	FailValidation  FailureKind = "validation" // argument coercion or schema validation failed
	FailUnknownTool FailureKind = "unknown_tool"
)

// ToolResult is the outcome of one tool invocation. Ephemeral: created by the
// dispatcher and consumed by the reply formatter within the same turn.
type ToolResult struct {
	Kind    FailureKind       `json:"kind,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Message string            `json:"message,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r ToolResult) OK() bool { return r.Kind == FailNone }

// SuccessResult builds a successful ToolResult from a flat field mapping.
func SuccessResult(fields map[string]string) ToolResult {
	return ToolResult{Fields: fields}
}

// FailureResult builds a failed ToolResult.
func FailureResult(kind FailureKind, message string) ToolResult {
	return ToolResult{Kind: kind, Message: message}
}

// FlattenFields converts a decoded JSON object into the flat string mapping the
// formatter consumes. Nested values are re-marshalled to compact JSON.
func FlattenFields(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
			out[k] = ""
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(raw)
		}
	}
	return out
}

// SortedFieldNames returns the field names of a result payload in a stable order.
func SortedFieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Backend Outcomes
// =============================================================================

// OutcomeKind tags a backend attempt outcome.
type OutcomeKind string

const (
	OutcomeAnswered OutcomeKind = "answered"
	OutcomeToolCall OutcomeKind = "tool_call"
	OutcomeDeclined OutcomeKind = "declined"
)

// Outcome is the result of one backend attempt. The selector uses it to decide
// fallthrough; it is never exposed past the selector boundary.
type Outcome struct {
	Kind    OutcomeKind
	Answer  string           // set when Kind == OutcomeAnswered
	Request *ToolCallRequest // set when Kind == OutcomeToolCall
	Reason  string           // set when Kind == OutcomeDeclined
}

// Answered builds a direct-answer outcome.
func Answered(text string) Outcome {
	return Outcome{Kind: OutcomeAnswered, Answer: text}
}

// ResolvedToolCall builds a tool-call outcome.
func ResolvedToolCall(req *ToolCallRequest) Outcome {
	return Outcome{Kind: OutcomeToolCall, Request: req}
}

// Declined builds a declined outcome; reason is diagnostic only and is never
// surfaced raw to the user.
func Declined(reason string) Outcome {
	return Outcome{Kind: OutcomeDeclined, Reason: reason}
}
