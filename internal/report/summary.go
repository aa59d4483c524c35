// Package report renders session and store summaries for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/frost-warsaw/frost/internal/model"
)

var (
	dim   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	bold  = lipgloss.NewStyle().Bold(true)
)

const none = "-"

// WriteStore prints the record count and observed time span.
func WriteStore(w io.Writer, title string, s model.StoreSummary) error {
	lines := []string{
		"",
		bold.Render("    " + title),
		"",
		row("Records", green.Render(fmt.Sprintf("%d", s.Records))),
		row("First seen", cyan.Render(orNone(s.FirstObserved))),
		row("Last seen", cyan.Render(orNone(s.LastObserved))),
		"",
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// WriteSession prints a session summary: the store view plus the session
// counters when the session has run.
func WriteSession(w io.Writer, s model.Summary) error {
	if err := WriteStore(w, "Session summary", s.StoreSummary); err != nil {
		return err
	}
	if s.SessionID == "" {
		return nil
	}
	lines := []string{
		row("Session", dim.Render(s.SessionID)),
		row("Ran for", dim.Render(s.Duration.Round(time.Second).String())),
		row("Cycles", fmt.Sprintf("%d", s.Cycles)),
		row("Persisted", fmt.Sprintf("%d", s.Persisted)),
		row("Abandoned", fmt.Sprintf("%d", s.AbandonedBatches)),
		"",
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func row(label, value string) string {
	return fmt.Sprintf("    %-14s %s", label, value)
}

func orNone(s *string) string {
	if s == nil || *s == "" {
		return none
	}
	return *s
}
