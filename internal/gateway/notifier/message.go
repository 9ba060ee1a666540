package notifier

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Telegram rejects messages longer than 4096 characters.
const maxMessageLen = 3800

// Field is one aligned label/value row of a Message.
type Field struct {
	Label string
	Value string
}

// Message is a short report: a title line, an aligned table of fields in a
// code block, and optional notes below it.
type Message struct {
	Title  string
	Fields []Field
	Notes  []string
	At     time.Time
}

// Add appends a field, formatting value with %v.
func (m *Message) Add(label string, value any) {
	m.Fields = append(m.Fields, Field{Label: label, Value: fmt.Sprint(value)})
}

// Render returns the Markdown text sent to the chat.
func (m Message) Render() string {
	var b strings.Builder
	if title := strings.TrimSpace(m.Title); title != "" {
		b.WriteString("*" + escape(title) + "*\n")
	}
	if len(m.Fields) > 0 {
		b.WriteString("```\n")
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, f := range m.Fields {
			fmt.Fprintf(tw, "%s\t%s\n", codeSafe(f.Label), codeSafe(f.Value))
		}
		_ = tw.Flush()
		b.WriteString("```\n")
	}
	for _, note := range m.Notes {
		if note = strings.TrimSpace(note); note != "" {
			b.WriteString(escape(note) + "\n")
		}
	}
	if !m.At.IsZero() {
		b.WriteString("_" + m.At.UTC().Format("2006-01-02 15:04:05 MST") + "_")
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxMessageLen {
		out = out[:maxMessageLen] + "..."
	}
	return out
}

func codeSafe(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "`", "'")
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
