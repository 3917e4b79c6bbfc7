// Package breath maps excitement to a breathing rhythm for paced feedback.
package breath

import (
	"math"
	"time"
)

var periods = [...]time.Duration{
	3000 * time.Millisecond,
	1500 * time.Millisecond,
	1000 * time.Millisecond,
	750 * time.Millisecond,
	600 * time.Millisecond,
}

// Period returns the breath cycle length for an excitement level (1..5).
// Out-of-range levels use level 1.
func Period(level int) time.Duration {
	if level < 1 || level > len(periods) {
		return periods[0]
	}
	return periods[level-1]
}

// Value returns the breath amplitude in [0, 1] at elapsed into a cycle of
// length period. A cycle starts and ends at 0 and peaks at the midpoint.
func Value(elapsed, period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	p := float64(elapsed%period) / float64(period)
	if p < 0 {
		p++
	}
	return (math.Sin(2*math.Pi*p-math.Pi/2) + 1) / 2
}
