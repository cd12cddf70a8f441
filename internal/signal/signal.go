// Package signal standardizes payloads shared between data ingestion,
// strategy, and order management layers.
package signal

import "time"

// Direction is a strategy's desired position for one evaluation step.
type Direction int

const (
	// Flat means hold no position (and close any open one).
	Flat Direction = iota
	// Long means hold a long position.
	Long
	// Short means hold a short position.
	Short
)

// String returns the canonical label for the direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Signal expresses the trading bias produced by a strategy for one bar. It is
// immutable once created; one signal is produced per bar per instrument.
type Signal struct {
	Instrument string
	Ts         time.Time
	Direction  Direction
	Strength   float64 // confidence in [0, 1]
	Stop       float64 // optional stop level, 0 when unset
	Target     float64 // optional take-profit level, 0 when unset
	Reason     string
}

// PositionView is the read-only slice of position state a strategy may see.
type PositionView struct {
	Direction Direction
	Qty       float64
	AvgEntry  float64
}
