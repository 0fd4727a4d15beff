package brain

import (
	"context"
	"log/slog"

	"nimbus/internal/domain"
)

// GiveUpAnswer is the fixed terminal reply when every backend declines. The
// chain always terminates with either a tool call or user-facing text.
const GiveUpAnswer = "I can help you get weather information! Please ask like 'What's the weather in [city name]?'"

// Resolution is the selector's verdict for one turn: either a final answer or
// a tool call to dispatch. Backend identifies which backend resolved it; nil
// for the terminal give-up answer.
type Resolution struct {
	FinalAnswer string
	Request     *domain.ToolCallRequest
	Backend     domain.Backend
}

// Option is a functional option for configuring Selector.
type Option func(*Selector)

// WithLogger sets a structured logger for the Selector. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// Selector tries backends in fixed priority order. A successful outcome
// short-circuits immediately and is never second-guessed by a later backend;
// only a decline advances the chain. Adding a backend is appending to the
// list, not new branching.
type Selector struct {
	backends []domain.Backend
	logger   *slog.Logger
}

// NewSelector returns a Selector over the given chain. The chain must not be
// empty; nil entries are skipped.
func NewSelector(backends []domain.Backend, opts ...Option) *Selector {
	s := &Selector{}
	for _, b := range backends {
		if b != nil {
			s.backends = append(s.backends, b)
		}
	}
	if len(s.backends) == 0 {
		panic("selector: at least one backend required")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Resolve runs the fallback chain for one user turn. It returns an error only
// when ctx is cancelled between attempts; every backend failure is absorbed
// into fallthrough, and exhaustion yields the fixed terminal answer.
func (s *Selector) Resolve(ctx context.Context, message string, history []domain.Turn, catalog *domain.Catalog) (Resolution, error) {
	for _, b := range s.backends {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		outcome := b.Attempt(ctx, message, history, catalog)
		switch outcome.Kind {
		case domain.OutcomeAnswered:
			return Resolution{FinalAnswer: outcome.Answer, Backend: b}, nil
		case domain.OutcomeToolCall:
			s.log().Info("backend resolved tool call", "backend", b.Name(), "tool", outcome.Request.Name)
			return Resolution{Request: outcome.Request, Backend: b}, nil
		case domain.OutcomeDeclined:
			s.log().Warn("backend declined, trying next", "backend", b.Name(), "reason", outcome.Reason)
		}
	}

	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	return Resolution{FinalAnswer: GiveUpAnswer}, nil
}
