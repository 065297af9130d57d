package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders job records and admission window listings.
type Formatter interface {
	FormatJob(job *core.Job) (string, error)
	FormatWindows(windows []WindowView) (string, error)
}

// WindowView pairs a stored admission window with its effective limit for
// rendering. ResetAt is when the current window rolls over.
type WindowView struct {
	Key         string    `json:"key"`
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	Window      string    `json:"window"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}

// NewWindowView derives the rendered view of one stored window under the
// limit that currently governs its class.
func NewWindowView(state core.WindowState, limit int, window time.Duration) WindowView {
	remaining := limit - state.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	return WindowView{
		Key:         state.Key,
		Used:        state.RequestCount,
		Limit:       limit,
		Remaining:   remaining,
		Window:      window.String(),
		WindowStart: state.WindowStart,
		ResetAt:     state.WindowStart.Add(window),
	}
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
