// Package chat drives the interactive conversation: it reads user messages,
// runs the resolution chain, dispatches resolved tool calls, and renders
// exactly one reply per turn.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"nimbus/internal/brain"
	"nimbus/internal/domain"
	"nimbus/internal/reply"
)

// Summarizer is implemented by backends that can turn a raw tool result into
// conversational prose. Backends without it get the template formatter.
type Summarizer interface {
	FollowUp(ctx context.Context, message string, history []domain.Turn, req *domain.ToolCallRequest, result domain.ToolResult) (string, error)
}

const farewell = "Goodbye! Stay dry out there."

// exitWords end the interactive session.
var exitWords = map[string]bool{
	"quit": true,
	"exit": true,
	"bye":  true,
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithIO sets the reader and writer for the interactive session.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(lp *Loop) {
		lp.in = in
		lp.out = out
	}
}

// Loop owns the per-session conversation state. It is not safe for concurrent
// use; one loop serves one session.
type Loop struct {
	selector   *brain.Selector
	dispatcher *brain.Dispatcher
	formatter  *reply.Formatter
	catalog    *domain.Catalog

	history []domain.Turn
	window  int

	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	newID  func() string
	clock  func() time.Time
}

// NewLoop wires a conversation loop. Panics if any collaborator is nil.
func NewLoop(selector *brain.Selector, dispatcher *brain.Dispatcher, formatter *reply.Formatter, catalog *domain.Catalog, cfg domain.ChatConfig, opts ...Option) *Loop {
	if selector == nil {
		panic("chat: selector must not be nil")
	}
	if dispatcher == nil {
		panic("chat: dispatcher must not be nil")
	}
	if formatter == nil {
		panic("chat: formatter must not be nil")
	}
	if catalog == nil {
		panic("chat: catalog must not be nil")
	}

	window := cfg.HistoryWindow
	if window <= 0 {
		window = 20
	}

	lp := &Loop{
		selector:   selector,
		dispatcher: dispatcher,
		formatter:  formatter,
		catalog:    catalog,
		window:     window,
		newID:      uuid.NewString,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

func (l *Loop) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

// History returns a copy of the recorded turns.
func (l *Loop) History() []domain.Turn {
	out := make([]domain.Turn, len(l.history))
	copy(out, l.history)
	return out
}

// HandleTurn processes one user message and returns the single reply for it.
// A cancelled turn returns the context error and records nothing.
func (l *Loop) HandleTurn(ctx context.Context, message string) (string, error) {
	window := l.windowedHistory()

	resolution, err := l.selector.Resolve(ctx, message, window, l.catalog)
	if err != nil {
		return "", err
	}

	answer := resolution.FinalAnswer
	if resolution.Request != nil {
		answer = l.executeToolCall(ctx, message, window, resolution)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.record(domain.RoleUser, message)
	l.record(domain.RoleAssistant, answer)
	return answer, nil
}

// executeToolCall dispatches the resolved call and renders its result. When
// the resolving backend can summarize and the call succeeded, the model's
// prose wins; the template formatter covers every other path.
func (l *Loop) executeToolCall(ctx context.Context, message string, window []domain.Turn, resolution brain.Resolution) string {
	req := resolution.Request
	l.log().Info("dispatching tool call", "tool", req.Name)

	result := l.dispatcher.Dispatch(ctx, req)
	if !result.OK() {
		l.log().Warn("tool call failed", "tool", req.Name, "kind", result.Kind, "detail", result.Message)
		return l.formatter.FormatResult(req, result)
	}

	if summarizer, ok := resolution.Backend.(Summarizer); ok {
		prose, err := summarizer.FollowUp(ctx, message, window, req, result)
		if err == nil && prose != "" {
			return prose
		}
		if err != nil {
			l.log().Warn("follow-up summarization failed, using template", "tool", req.Name, "error", err)
		}
	}
	return l.formatter.FormatResult(req, result)
}

// Run drives the interactive session until EOF, an exit word, or ctx
// cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if l.in == nil || l.out == nil {
		return fmt.Errorf("chat: interactive session needs input and output streams")
	}

	fmt.Fprintf(l.out, "Connected with %d tools: %s\n", l.catalog.Len(), strings.Join(l.catalog.Names(), ", "))
	fmt.Fprintln(l.out, "Ask about the weather, or type 'quit' to leave.")

	scanner := bufio.NewScanner(l.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(l.out, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if exitWords[strings.ToLower(message)] {
			fmt.Fprintln(l.out, farewell)
			return nil
		}

		answer, err := l.HandleTurn(ctx, message)
		if err != nil {
			return err
		}
		fmt.Fprintf(l.out, "Assistant: %s\n", answer)
	}
}

func (l *Loop) windowedHistory() []domain.Turn {
	if len(l.history) <= l.window {
		return l.history
	}
	return l.history[len(l.history)-l.window:]
}

func (l *Loop) record(role domain.Role, content string) {
	l.history = append(l.history, domain.Turn{
		ID:        l.newID(),
		Role:      role,
		Content:   content,
		Timestamp: l.clock(),
	})
}
