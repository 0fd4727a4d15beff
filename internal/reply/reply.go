// Package reply renders tool outcomes into the single assistant reply a turn
// produces. Formatting is deterministic: the same result always renders the
// same text, and raw transport errors never leak to the user.
package reply

import (
	"fmt"
	"strings"

	"nimbus/internal/domain"
)

// Failure sentences keyed by failure kind. Wording stays apologetic and
// actionable; the underlying error text is logged, not shown.
const (
	transportApology  = "Sorry, I couldn't reach the weather service just now. Please try again in a moment."
	remoteApology     = "Sorry, the weather service couldn't complete that request. Please check the city name and try again."
	validationApology = "Sorry, I couldn't work out the details needed for that request. Try asking like 'What's the weather in London?'"
	unknownApology    = "Sorry, I don't have a tool for that request."
	genericApology    = "Sorry, something went wrong handling that request."
)

// Formatter renders tool results into reply text.
type Formatter struct{}

// NewFormatter returns a formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatResult renders the outcome of a dispatched tool call. req names the
// call that produced the result and supplies the subject for the header.
func (f *Formatter) FormatResult(req *domain.ToolCallRequest, result domain.ToolResult) string {
	if !result.OK() {
		return failureSentence(result.Kind)
	}
	return successBody(req, result)
}

func failureSentence(kind domain.FailureKind) string {
	switch kind {
	case domain.FailTransport:
		return transportApology
	case domain.FailRemote:
		return remoteApology
	case domain.FailValidation:
		return validationApology
	case domain.FailUnknownTool:
		return unknownApology
	default:
		return genericApology
	}
}

// successBody renders a header naming the tool and subject, then one indented
// line per field in sorted order.
func successBody(req *domain.ToolCallRequest, result domain.ToolResult) string {
	var b strings.Builder
	b.WriteString(header(req))

	for _, name := range domain.SortedFieldNames(result.Fields) {
		fmt.Fprintf(&b, "\n  %s: %s", name, result.Fields[name])
	}
	return b.String()
}

func header(req *domain.ToolCallRequest) string {
	label := strings.ReplaceAll(req.Name, "_", " ")
	if subject := subjectOf(req); subject != "" {
		return fmt.Sprintf("Here's the %s for %s:", label, subject)
	}
	return fmt.Sprintf("Here's the %s:", label)
}

// subjectOf picks the human-facing subject from the request arguments,
// preferring the city parameter the weather tools share.
func subjectOf(req *domain.ToolCallRequest) string {
	if city, ok := req.Arguments["city"].(string); ok && city != "" {
		return city
	}
	for _, v := range req.Arguments {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
