package market

import (
	"fmt"
	"time"
)

// Granularity enumerates supported bar intervals.
type Granularity string

const (
	M1  Granularity = "1m"
	M3  Granularity = "3m"
	M5  Granularity = "5m"
	M10 Granularity = "10m"
	M15 Granularity = "15m"
	M30 Granularity = "30m"
	H1  Granularity = "1h"
	H2  Granularity = "2h"
	H4  Granularity = "4h"
	H6  Granularity = "6h"
	H12 Granularity = "12h"
	D1  Granularity = "1d"
	W1  Granularity = "1w"
	Mo1 Granularity = "1M"
)

var granularitySecs = map[Granularity]int64{
	M1:  60,
	M3:  3 * 60,
	M5:  5 * 60,
	M10: 10 * 60,
	M15: 15 * 60,
	M30: 30 * 60,
	H1:  60 * 60,
	H2:  2 * 60 * 60,
	H4:  4 * 60 * 60,
	H6:  6 * 60 * 60,
	H12: 12 * 60 * 60,
	D1:  24 * 60 * 60,
	W1:  7 * 24 * 60 * 60,
	Mo1: 30 * 24 * 60 * 60,
}

// ParseGranularity validates a config string against the supported intervals.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if _, ok := granularitySecs[g]; !ok {
		return "", fmt.Errorf("unknown granularity %q", s)
	}
	return g, nil
}

// Seconds returns the interval length in seconds.
func (g Granularity) Seconds() int64 {
	return granularitySecs[g]
}

// Duration returns the interval as a time.Duration.
func (g Granularity) Duration() time.Duration {
	return time.Duration(g.Seconds()) * time.Second
}

// Truncate floors ts to the open time of the bucket containing it.
func (g Granularity) Truncate(ts time.Time) time.Time {
	secs := g.Seconds()
	if secs <= 0 {
		return ts
	}
	unix := ts.Unix()
	return time.Unix(unix-unix%secs, 0).UTC()
}
