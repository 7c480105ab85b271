package snapshot

import (
	"strings"
	"testing"
	"time"
)

func metricAt(base time.Time, offset, dur time.Duration, input any, success bool, msg string) Metric {
	return Metric{
		Input:        input,
		StartTime:    base.Add(offset),
		EndTime:      base.Add(offset + dur),
		Success:      success,
		ErrorMessage: msg,
	}
}

func TestBuildReportEmpty(t *testing.T) {
	r := BuildReport(nil)
	if r.TotalItems != 0 {
		t.Errorf("TotalItems = %d, want 0", r.TotalItems)
	}
	if !strings.Contains(r.Markdown(), "No items were processed") {
		t.Errorf("empty report markdown missing placeholder")
	}
}

func TestBuildReportTotals(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	metrics := []Metric{
		metricAt(base, 0, 100*time.Millisecond, "a", true, ""),
		metricAt(base, time.Second, 300*time.Millisecond, "b", true, ""),
		metricAt(base, 2*time.Second, 200*time.Millisecond, "c", false, "boom"),
	}

	r := BuildReport(metrics)
	if r.TotalItems != 3 || r.SuccessfulItems != 2 || r.FailedCount != 1 {
		t.Errorf("totals = %d/%d/%d, want 3/2/1", r.TotalItems, r.SuccessfulItems, r.FailedCount)
	}
	if r.AvgDuration != 200*time.Millisecond {
		t.Errorf("AvgDuration = %s, want 200ms", r.AvgDuration)
	}
	if r.MinDuration != 100*time.Millisecond || r.MaxDuration != 300*time.Millisecond {
		t.Errorf("min/max = %s/%s, want 100ms/300ms", r.MinDuration, r.MaxDuration)
	}
	if !r.ProcessingStart.Equal(base) {
		t.Errorf("ProcessingStart = %s, want %s", r.ProcessingStart, base)
	}
	if want := base.Add(2*time.Second + 200*time.Millisecond); !r.ProcessingEnd.Equal(want) {
		t.Errorf("ProcessingEnd = %s, want %s", r.ProcessingEnd, want)
	}
	if len(r.FailedItems) != 1 || r.FailedItems[0].ErrorMessage != "boom" {
		t.Errorf("FailedItems = %v, want the single failure", r.FailedItems)
	}
}

func TestBuildReportDetectsSlowOutlier(t *testing.T) {
	base := time.Now()
	var metrics []Metric
	for i := range 20 {
		metrics = append(metrics, metricAt(base, time.Duration(i)*time.Second, 100*time.Millisecond, i, true, ""))
	}
	metrics = append(metrics, metricAt(base, 30*time.Second, 5*time.Second, "slow", true, ""))

	r := BuildReport(metrics)
	if len(r.SlowOutliers) != 1 || r.SlowOutliers[0].Input != "slow" {
		t.Errorf("SlowOutliers = %v, want the single slow item", r.SlowOutliers)
	}
}

func TestReportRenderings(t *testing.T) {
	base := time.Now()
	metrics := []Metric{
		metricAt(base, 0, time.Millisecond, "a", true, ""),
		metricAt(base, time.Second, time.Millisecond, "b", false, "bad input"),
	}
	r := BuildReport(metrics)

	md := r.Markdown()
	for _, want := range []string{"## Summary", "| Failed | 1 |", "## Failed Items", "bad input"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	out, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if !strings.Contains(out, `"total_items": 2`) {
		t.Errorf("json missing totals: %s", out)
	}
}
