package snapshot

import (
	"time"
)

// Metric holds timing and result information for a single attempted item,
// success or failure. One Metric is recorded per attempt.
type Metric struct {
	Input        any       `json:"input"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Duration returns how long the item took to process.
func (m Metric) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}
