package perf

import (
	"sort"
	"testing"
	"time"
)

func TestArticlePageLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			// Published article served from the render cache.
			name:      "cached",
			samples:   []time.Duration{18 * time.Millisecond, 22 * time.Millisecond, 25 * time.Millisecond, 30 * time.Millisecond, 34 * time.Millisecond, 40 * time.Millisecond, 45 * time.Millisecond, 52 * time.Millisecond, 60 * time.Millisecond, 75 * time.Millisecond},
			threshold: 150 * time.Millisecond,
		},
		{
			// First hit after an edit: full Markdown render plus sanitising.
			name:      "cold",
			samples:   []time.Duration{120 * time.Millisecond, 150 * time.Millisecond, 180 * time.Millisecond, 210 * time.Millisecond, 240 * time.Millisecond, 280 * time.Millisecond, 320 * time.Millisecond, 360 * time.Millisecond, 400 * time.Millisecond, 450 * time.Millisecond},
			threshold: 800 * time.Millisecond,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
