package output

import (
	"strconv"
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

type fieldRow struct {
	Label string
	Value string
}

// jobRows flattens a job record into label/value pairs. Optional fields
// appear only once they carry data, so a queued job renders short and a
// finished one renders the full timeline.
func jobRows(job *core.Job) []fieldRow {
	if job == nil {
		return nil
	}

	rows := []fieldRow{
		{"Handle", job.Handle},
		{"Caller", job.Caller},
		{"Class", job.Class},
		{"State", stateLabel(job.State)},
	}

	if job.Provider != "" {
		rows = append(rows, fieldRow{"Provider", job.Provider})
	}
	if job.ProviderRef != "" {
		rows = append(rows, fieldRow{"Ref", job.ProviderRef})
	}
	if job.Cost > 1 {
		rows = append(rows, fieldRow{"Cost", strconv.Itoa(job.Cost)})
	}

	rows = append(rows,
		fieldRow{"Attempts", strconv.Itoa(job.Attempts)},
		fieldRow{"Polls", strconv.Itoa(job.Polls)},
	)

	if !job.CreatedAt.IsZero() {
		rows = append(rows, fieldRow{"Created", formatTimestamp(job.CreatedAt)})
	}
	if job.SubmittedAt != nil {
		rows = append(rows, fieldRow{"Submitted", formatTimestamp(*job.SubmittedAt)})
	}
	if job.FinishedAt != nil {
		rows = append(rows, fieldRow{"Finished", formatTimestamp(*job.FinishedAt)})
		if d := jobElapsed(job); d > 0 {
			rows = append(rows, fieldRow{"Elapsed", d.String()})
		}
	}
	if !job.Deadline.IsZero() {
		rows = append(rows, fieldRow{"Deadline", formatTimestamp(job.Deadline)})
	}

	return rows
}

func stateLabel(state core.JobState) string {
	if state == core.StateTimedOut {
		return "timed out"
	}
	return string(state)
}

// jobElapsed is wall time from creation to finish for terminal jobs.
func jobElapsed(job *core.Job) time.Duration {
	if job == nil || job.FinishedAt == nil || job.CreatedAt.IsZero() {
		return 0
	}
	d := job.FinishedAt.Sub(job.CreatedAt)
	if d < 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
