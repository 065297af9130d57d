package core

import "time"

// WindowState captures one admission key's fixed-window counters.
type WindowState struct {
	Key          string    `json:"key"`
	RequestCount int       `json:"request_count"`
	WindowStart  time.Time `json:"window_start"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the window that started at WindowStart has rolled
// over by now. The window covers [WindowStart, WindowStart+window).
func (w *WindowState) Expired(window time.Duration, now time.Time) bool {
	return !now.Before(w.WindowStart.Add(window))
}
