// Package report turns a finished conversation into a PDF learning analysis.
//
// The [Assembler] renders the conversation into a single analysis prompt and
// submits it through the exchange manager, so the request and the model's
// answer become part of the visible history. The [Compiler] lays the answer
// out as a PDF together with a small bar chart. [Service] ties both together.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/edusync/internal/conversation"
)

// DefaultPreamble is the instruction placed before the rendered conversation.
const DefaultPreamble = "Analyze the following conversation between a student and a learning assistant. " +
	"Describe the student's emotional state, learning behaviour and engagement, " +
	"point out recurring difficulties, and give concrete recommendations for their studies."

// ErrEmptyAnalysis is returned when the model's analysis is empty or
// whitespace-only. No document is produced.
var ErrEmptyAnalysis = errors.New("report: empty analysis")

// Submitter performs one exchange on a conversation. *exchange.Manager
// satisfies it.
type Submitter interface {
	Submit(ctx context.Context, userText string) (string, error)
	History() []conversation.Turn
}

// BuildPrompt renders history after [DefaultPreamble].
func BuildPrompt(history []conversation.Turn) string {
	return buildPrompt(DefaultPreamble, history)
}

// buildPrompt writes the preamble, a blank line, then one "Role: content"
// line per turn in order.
func buildPrompt(preamble string, history []conversation.Turn) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	for _, t := range history {
		b.WriteString(t.Role.Label())
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// AssemblerOption configures an [Assembler].
type AssemblerOption func(*Assembler)

// WithPreamble replaces [DefaultPreamble]. An empty string is ignored.
func WithPreamble(p string) AssemblerOption {
	return func(a *Assembler) {
		if p != "" {
			a.preamble = p
		}
	}
}

// Assembler requests an analysis of a conversation.
type Assembler struct {
	sub      Submitter
	preamble string
}

// NewAssembler creates an Assembler that submits through sub.
func NewAssembler(sub Submitter, opts ...AssemblerOption) *Assembler {
	a := &Assembler{sub: sub, preamble: DefaultPreamble}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze builds the analysis prompt from the current history, submits it as
// a user turn and returns the reply. Errors from the exchange are returned
// unchanged; a blank reply yields [ErrEmptyAnalysis].
func (a *Assembler) Analyze(ctx context.Context) (string, error) {
	prompt := buildPrompt(a.preamble, a.sub.History())
	reply, err := a.sub.Submit(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("report: analyze: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyAnalysis
	}
	return reply, nil
}

// ChartPoint is one bar in the report chart.
type ChartPoint struct {
	Label string
	Value float64
}

// ChartData returns the number of words in each user turn, in order. It is an
// illustration of how much the student wrote over time, not a measurement.
func ChartData(history []conversation.Turn) []ChartPoint {
	var pts []ChartPoint
	n := 0
	for _, t := range history {
		if t.Role != conversation.RoleUser {
			continue
		}
		n++
		pts = append(pts, ChartPoint{
			Label: fmt.Sprintf("#%d", n),
			Value: float64(len(strings.Fields(t.Content))),
		})
	}
	return pts
}
