// Package transcript renders provider transcripts for people.
//
// Raw provider transcripts tag each turn with a role marker at the start of
// the line ("assistant: ..." / "user: ..."). Rendering replaces the marker with
// a speaker label and glyph and leaves every other line as it was.
package transcript

import "strings"

const (
	markerAssistant = "assistant:"
	markerUser      = "user:"

	roleAssistant = "assistant"
)

// Formatter holds the labels used for each speaker.
type Formatter struct {
	AgentLabel    string
	AgentGlyph    string
	CustomerLabel string
	CustomerGlyph string
}

// Turn is a single utterance as reported by the provider.
type Turn struct {
	Role string
	Text string
}

// New returns a Formatter with the default glyphs and the given agent name.
func New(agentName string) Formatter {
	if agentName == "" {
		agentName = "Agent"
	}
	return Formatter{
		AgentLabel:    agentName,
		AgentGlyph:    "👨‍💼",
		CustomerLabel: "Customer",
		CustomerGlyph: "👤",
	}
}

// Format re-tags every line that starts with a role marker. Line order and
// unrecognised lines are preserved verbatim.
func (f Formatter) Format(raw string) string {
	if raw == "" {
		return ""
	}
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = f.formatLine(line)
	}
	return strings.Join(lines, "\n")
}

func (f Formatter) formatLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, markerAssistant):
		return f.agent(strings.TrimPrefix(trimmed, markerAssistant))
	case strings.HasPrefix(trimmed, markerUser):
		return f.customer(strings.TrimPrefix(trimmed, markerUser))
	default:
		return line
	}
}

// FromTurns renders individual turns one per line. Anything not spoken by the
// assistant is attributed to the customer.
func (f Formatter) FromTurns(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role == roleAssistant {
			lines = append(lines, f.agent(t.Text))
			continue
		}
		lines = append(lines, f.customer(t.Text))
	}
	return strings.Join(lines, "\n")
}

func (f Formatter) agent(text string) string {
	return f.AgentGlyph + " " + f.AgentLabel + ": " + strings.TrimSpace(text)
}

func (f Formatter) customer(text string) string {
	return f.CustomerGlyph + " " + f.CustomerLabel + ": " + strings.TrimSpace(text)
}
