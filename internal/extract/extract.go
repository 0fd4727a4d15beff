package extract

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"nimbus/internal/domain"
)

// Rule is one ordered pattern in the extraction table. The pattern is matched
// against the lowercased message and must carry exactly one capture group for
// the subject entity.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// Table is the full rule table: the target tool plus the ordered rules.
// Order is priority: more specific phrasings come before generic ones, and
// the first matching rule wins.
type Table struct {
	Tool  string `yaml:"tool"`
	Rules []Rule `yaml:"rules"`
}

// DefaultTable is the built-in rule table for the weather-lookup tool. The set
// of supported phrasings is a fixed, documented contract: changing order
// changes which rule wins for messages matching several patterns.
func DefaultTable() Table {
	return Table{
		Tool: "get_weather",
		Rules: []Rule{
			{Name: "whats-weather-in", Pattern: `what(?:'|’)?s the weather (?:like )?in ([^?.!]+)`},
			{Name: "hows-weather-in", Pattern: `how(?:'|’)?s the weather in ([^?.!]+)`},
			{Name: "weather-in", Pattern: `weather in ([^?.!]+)`},
			{Name: "weather-for", Pattern: `weather for ([^?.!]+)`},
			{Name: "weather-at", Pattern: `weather at ([^?.!]+)`},
			{Name: "forecast-for", Pattern: `forecast (?:for|in) ([^?.!]+)`},
		},
	}
}

// LoadTable reads a rule table from a YAML file, for deployments that want to
// extend the supported phrasings without a rebuild.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("rule table load: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("rule table parse: %w", err)
	}
	if t.Tool == "" {
		t.Tool = DefaultTable().Tool
	}
	if len(t.Rules) == 0 {
		return Table{}, fmt.Errorf("rule table %s: no rules", path)
	}
	return t, nil
}

type compiledRule struct {
	name string
	re   *regexp.Regexp
}

// Extractor is the deterministic rule-based fallback backend: it maps a
// free-text message directly to a tool call without any model round trip.
// Pure function of its inputs; no hidden state, no network.
type Extractor struct {
	tool  string
	rules []compiledRule
}

// New compiles a rule table. Each pattern must compile and carry exactly one
// capture group.
func New(table Table) (*Extractor, error) {
	if table.Tool == "" {
		return nil, fmt.Errorf("extractor: table has no target tool")
	}
	rules := make([]compiledRule, 0, len(table.Rules))
	for _, r := range table.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("extractor: rule %q: %w", r.Name, err)
		}
		if re.NumSubexp() != 1 {
			return nil, fmt.Errorf("extractor: rule %q: want exactly 1 capture group, got %d", r.Name, re.NumSubexp())
		}
		rules = append(rules, compiledRule{name: r.Name, re: re})
	}
	return &Extractor{tool: table.Tool, rules: rules}, nil
}

// MustDefault returns an extractor for the built-in table. Panics only on a
// programmer error in the table itself.
func MustDefault() *Extractor {
	e, err := New(DefaultTable())
	if err != nil {
		panic("extract: default table invalid: " + err.Error())
	}
	return e
}

// Extract applies the rules in priority order against the normalized message.
// Returns nil when no rule matches or the target tool is absent from the
// catalog; nil is the designed "cannot help" state, not a fault.
func (e *Extractor) Extract(message string, catalog *domain.Catalog) *domain.ToolCallRequest {
	descriptor, ok := catalog.Get(e.tool)
	if !ok {
		return nil
	}

	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, rule := range e.rules {
		m := rule.re.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		city := cleanEntity(m[1])
		if city == "" {
			continue
		}
		return &domain.ToolCallRequest{
			Name:      e.tool,
			Arguments: map[string]any{paramName(descriptor): city},
		}
	}
	return nil
}

// Name implements domain.Backend.
func (e *Extractor) Name() string { return "pattern" }

// Attempt implements domain.Backend: a match resolves a tool call, no match
// declines so the selector reaches its terminal answer.
func (e *Extractor) Attempt(ctx context.Context, message string, history []domain.Turn, catalog *domain.Catalog) domain.Outcome {
	if req := e.Extract(message, catalog); req != nil {
		return domain.ResolvedToolCall(req)
	}
	return domain.Declined("no pattern rule matched")
}

// paramName returns the sole required parameter of the target tool, falling
// back to "city" when the schema names none.
func paramName(d domain.ToolDescriptor) string {
	if required := d.RequiredParams(); len(required) == 1 {
		return required[0]
	}
	return "city"
}

// cleanEntity trims surrounding whitespace and trailing punctuation from a
// captured entity and title-cases it ("new  york?" -> "New York").
func cleanEntity(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

var _ domain.Backend = (*Extractor)(nil)
