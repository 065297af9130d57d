package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

type detailSection struct {
	Title string
	Lines []string
}

// resultEnvelope covers the shapes providers hand back: an inline audio
// envelope, a debug-capture wrapper, or bare output.
type resultEnvelope struct {
	AudioBase64 string          `json:"audio_base64"`
	ContentType string          `json:"content_type"`
	Output      json.RawMessage `json:"output"`
	RawCapture  json.RawMessage `json:"raw_capture"`
}

const maxResultURLs = 5

func detailSections(job *core.Job) []detailSection {
	if job == nil {
		return nil
	}

	sections := make([]detailSection, 0, 2)
	if lines := resultLines(job.Result, true); len(lines) > 0 {
		sections = append(sections, detailSection{Title: "Result", Lines: lines})
	}
	if lines := errorLines(job.Error); len(lines) > 0 {
		sections = append(sections, detailSection{Title: "Error", Lines: lines})
	}
	return sections
}

// resultLines summarizes a result payload without dumping blobs: audio
// envelopes report their decoded size, URL outputs list the links, and
// anything else falls back to a byte count.
func resultLines(raw json.RawMessage, unwrap bool) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var envelope resultEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if strings.TrimSpace(envelope.AudioBase64) != "" {
			line := fmt.Sprintf("inline audio (%s)", humanBytes(base64DecodedLen(envelope.AudioBase64)))
			if strings.TrimSpace(envelope.ContentType) != "" {
				line += " " + envelope.ContentType
			}
			return []string{line}
		}
		if unwrap && len(envelope.RawCapture) > 0 && len(envelope.Output) > 0 {
			lines := resultLines(envelope.Output, false)
			lines = append(lines, fmt.Sprintf("raw capture attached (%s)", humanBytes(len(envelope.RawCapture))))
			return lines
		}
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{urlOrText(single)}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		lines := make([]string, 0, maxResultURLs+1)
		for i, value := range many {
			if i == maxResultURLs {
				lines = append(lines, fmt.Sprintf("+%d more", len(many)-maxResultURLs))
				break
			}
			lines = append(lines, urlOrText(value))
		}
		return lines
	}

	return []string{fmt.Sprintf("json payload (%s)", humanBytes(len(raw)))}
}

func errorLines(jerr *core.JobError) []string {
	if jerr == nil {
		return nil
	}

	lines := make([]string, 0, 3)
	head := string(jerr.Kind)
	if jerr.Provider != "" {
		head += " (" + jerr.Provider + ")"
	}
	lines = append(lines, head)

	if strings.TrimSpace(jerr.Message) != "" {
		lines = append(lines, jerr.Message)
	}
	if jerr.RetryAfter > 0 {
		lines = append(lines, fmt.Sprintf("retry after %s", jerr.RetryAfter))
	}
	return lines
}

func urlOrText(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return "url: " + trimmed
	}
	if len(trimmed) > 120 {
		trimmed = trimmed[:117] + "..."
	}
	return "text: " + trimmed
}

// base64DecodedLen estimates decoded size without decoding.
func base64DecodedLen(encoded string) int {
	n := len(encoded) / 4 * 3
	if strings.HasSuffix(encoded, "==") {
		return n - 2
	}
	if strings.HasSuffix(encoded, "=") {
		return n - 1
	}
	return n
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func renderDetailSections(sections []detailSection, markdown bool) string {
	if len(sections) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, section := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		if markdown {
			sb.WriteString(fmt.Sprintf("\n\n### %s\n", section.Title))
			for _, line := range section.Lines {
				sb.WriteString(fmt.Sprintf("- %s\n", line))
			}
		} else {
			sb.WriteString(fmt.Sprintf("\n\n%s:\n", section.Title))
			for _, line := range section.Lines {
				sb.WriteString(fmt.Sprintf("  %s\n", line))
			}
		}
	}
	return sb.String()
}
