package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// OutlierItem is an item whose processing time deviated from the mean by more
// than two standard deviations.
type OutlierItem struct {
	Input    string        `json:"input"`
	Duration time.Duration `json:"duration"`
}

// FailedEntry describes one failed item in a report.
type FailedEntry struct {
	Input        string `json:"input"`
	ErrorMessage string `json:"error_message"`
}

// Report is a summary of a set of processing metrics.
type Report struct {
	TotalItems      int           `json:"total_items"`
	SuccessfulItems int           `json:"successful_items"`
	FailedCount     int           `json:"failed_count"`
	AvgDuration     time.Duration `json:"avg_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	ProcessingStart time.Time     `json:"processing_start"`
	ProcessingEnd   time.Time     `json:"processing_end"`
	TotalElapsed    time.Duration `json:"total_elapsed"`
	SlowOutliers    []OutlierItem `json:"slow_outliers"`
	FastOutliers    []OutlierItem `json:"fast_outliers"`
	FailedItems     []FailedEntry `json:"failed_items"`
}

// BuildReport aggregates metrics into a Report. An empty metric slice yields a
// zero-valued report.
func BuildReport(metrics []Metric) Report {
	var r Report
	if len(metrics) == 0 {
		return r
	}

	r.TotalItems = len(metrics)
	r.ProcessingStart = metrics[0].StartTime
	r.ProcessingEnd = metrics[0].EndTime
	r.MinDuration = metrics[0].Duration()
	r.MaxDuration = metrics[0].Duration()

	var total time.Duration
	for _, m := range metrics {
		d := m.Duration()
		total += d
		if d < r.MinDuration {
			r.MinDuration = d
		}
		if d > r.MaxDuration {
			r.MaxDuration = d
		}
		if m.StartTime.Before(r.ProcessingStart) {
			r.ProcessingStart = m.StartTime
		}
		if m.EndTime.After(r.ProcessingEnd) {
			r.ProcessingEnd = m.EndTime
		}
		if m.Success {
			r.SuccessfulItems++
		} else {
			r.FailedCount++
			r.FailedItems = append(r.FailedItems, FailedEntry{
				Input:        fmt.Sprintf("%v", m.Input),
				ErrorMessage: m.ErrorMessage,
			})
		}
	}
	r.AvgDuration = total / time.Duration(len(metrics))
	r.TotalElapsed = r.ProcessingEnd.Sub(r.ProcessingStart)

	// Outlier detection needs at least two samples for a standard deviation.
	if len(metrics) >= 2 {
		mean := float64(total) / float64(len(metrics))
		var variance float64
		for _, m := range metrics {
			diff := float64(m.Duration()) - mean
			variance += diff * diff
		}
		stdev := math.Sqrt(variance / float64(len(metrics)-1))

		for _, m := range metrics {
			d := float64(m.Duration())
			switch {
			case d > mean+2*stdev:
				r.SlowOutliers = append(r.SlowOutliers, OutlierItem{
					Input:    fmt.Sprintf("%v", m.Input),
					Duration: m.Duration(),
				})
			case d < mean-2*stdev:
				r.FastOutliers = append(r.FastOutliers, OutlierItem{
					Input:    fmt.Sprintf("%v", m.Input),
					Duration: m.Duration(),
				})
			}
		}
	}

	return r
}

// JSON renders the report as indented JSON.
func (r Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// Markdown renders the report as a Markdown document.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Processing Metrics Report\n\n")

	if r.TotalItems == 0 {
		b.WriteString("No items were processed.\n")
		return b.String()
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Total items processed | %d |\n", r.TotalItems)
	fmt.Fprintf(&b, "| Successful | %d |\n", r.SuccessfulItems)
	fmt.Fprintf(&b, "| Failed | %d |\n", r.FailedCount)
	fmt.Fprintf(&b, "| Average duration | %s |\n", r.AvgDuration)
	fmt.Fprintf(&b, "| Min duration | %s |\n", r.MinDuration)
	fmt.Fprintf(&b, "| Max duration | %s |\n", r.MaxDuration)
	fmt.Fprintf(&b, "| Processing start | %s |\n", r.ProcessingStart.Format(time.RFC3339))
	fmt.Fprintf(&b, "| Processing end | %s |\n", r.ProcessingEnd.Format(time.RFC3339))
	fmt.Fprintf(&b, "| Total elapsed | %s |\n", r.TotalElapsed)
	b.WriteString("\n")

	if len(r.SlowOutliers) > 0 {
		b.WriteString("## Slow Outliers (> mean + 2 stdev)\n\n")
		b.WriteString("| Input | Duration |\n")
		b.WriteString("|-------|----------|\n")
		for _, o := range r.SlowOutliers {
			fmt.Fprintf(&b, "| %s | %s |\n", o.Input, o.Duration)
		}
		b.WriteString("\n")
	}

	if len(r.FastOutliers) > 0 {
		b.WriteString("## Fast Outliers (< mean - 2 stdev)\n\n")
		b.WriteString("| Input | Duration |\n")
		b.WriteString("|-------|----------|\n")
		for _, o := range r.FastOutliers {
			fmt.Fprintf(&b, "| %s | %s |\n", o.Input, o.Duration)
		}
		b.WriteString("\n")
	}

	if len(r.FailedItems) > 0 {
		b.WriteString("## Failed Items\n\n")
		b.WriteString("| Input | Error |\n")
		b.WriteString("|-------|-------|\n")
		for _, f := range r.FailedItems {
			fmt.Fprintf(&b, "| %s | %s |\n", f.Input, f.ErrorMessage)
		}
		b.WriteString("\n")
	}

	return b.String()
}
