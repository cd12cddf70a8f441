// Package market holds the canonical time-series types shared by ingestion,
// indicators, and simulation.
package market

import "time"

// Bar is a fixed-interval OHLCV summary for one instrument. Bars are immutable
// once appended to a Series.
type Bar struct {
	Instrument string
	OpenTime   time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// Trade models a single executed trade tick from a market data feed.
type Trade struct {
	Instrument string
	Ts         time.Time
	Price      float64
	Qty        float64
	Side       int // +1 buy, -1 sell (aggressor)
}
