package metrics

import (
	"time"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/observability"
)

// Job lifecycle metrics
var (
	JobsStartedTotal   = "jobs_started_total"
	JobsCompletedTotal = "jobs_completed_total"
	JobsInflight       = "jobs_inflight"
	JobDuration        = "job_duration_ms"

	AdmissionDecisionsTotal = "admission_decisions_total"
)

// RecordJobStarted records a job entering the pipeline.
func RecordJobStarted(class string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			JobsStartedTotal,
			1,
			map[string]string{
				"class": class,
			},
		)
	}
}

// RecordJobCompleted records a job reaching a terminal state, with the
// wall-clock time from creation to the terminal transition.
func RecordJobCompleted(class string, outcome string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			JobsCompletedTotal,
			1,
			map[string]string{
				"class":   class,
				"outcome": outcome,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			JobDuration,
			duration,
			map[string]string{
				"class": class,
			},
		)
	}
}

// SetJobsInflight sets the number of jobs currently tracked (non-terminal
// plus terminal-unfetched).
func SetJobsInflight(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			JobsInflight,
			float64(count),
			nil,
		)
	}
}

// RecordAdmissionDecision records an admission gate decision for a class.
func RecordAdmissionDecision(class string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AdmissionDecisionsTotal,
			1,
			map[string]string{
				"class":    class,
				"decision": decision,
			},
		)
	}
}
