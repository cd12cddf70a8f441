// Package store persists historical bars and backtest results in sqlite.
// The driver is pure Go, so backtests stay a single static binary.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vitordhers/klapaucius/internal/market"
	"github.com/vitordhers/klapaucius/internal/perf"
	"github.com/vitordhers/klapaucius/internal/strategy"
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
	instrument TEXT NOT NULL,
	open_time  INTEGER NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     REAL NOT NULL,
	PRIMARY KEY (instrument, open_time)
);
CREATE TABLE IF NOT EXISTS results (
	id           TEXT PRIMARY KEY,
	created_at   INTEGER NOT NULL,
	name         TEXT NOT NULL,
	params       TEXT NOT NULL,
	equity       REAL NOT NULL,
	realized     REAL NOT NULL,
	fees         REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	trades       INTEGER NOT NULL,
	win_rate     REAL NOT NULL,
	sharpe       REAL NOT NULL
);
`

// Store wraps one sqlite database file.
type Store struct {
	db *sql.DB
}

// ResultRow is one persisted backtest summary.
type ResultRow struct {
	ID          string
	CreatedAt   time.Time
	Name        string
	Params      strategy.Params
	Equity      float64
	Realized    float64
	Fees        float64
	MaxDrawdown float64
	Trades      int
	WinRate     float64
	Sharpe      float64
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveBars upserts bars in one transaction. Re-saving an existing
// (instrument, open_time) overwrites it, so refreshed history wins.
func (s *Store) SaveBars(ctx context.Context, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (instrument, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instrument, open_time) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Instrument, b.OpenTime.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("insert bar %s %s: %w", b.Instrument, b.OpenTime, err)
		}
	}
	return tx.Commit()
}

// LoadBars returns bars for one instrument within [from, to], ordered by
// open time. Zero bounds mean unbounded on that side.
func (s *Store) LoadBars(ctx context.Context, instrument string, from, to time.Time) ([]market.Bar, error) {
	lo := int64(0)
	hi := int64(1<<62 - 1)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, open_time, open, high, low, close, volume
		FROM bars WHERE instrument = ? AND open_time BETWEEN ? AND ?
		ORDER BY open_time ASC`, instrument, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		var ts int64
		if err := rows.Scan(&b.Instrument, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.OpenTime = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SaveResult records one run summary and returns its id.
func (s *Store) SaveResult(ctx context.Context, name string, params strategy.Params, summary perf.Snapshot) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (id, created_at, name, params, equity, realized, fees,
			max_drawdown, trades, win_rate, sharpe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().Unix(), name, string(encoded),
		summary.Equity, summary.Realized, summary.Fees,
		summary.MaxDrawdown, summary.Trades, summary.WinRate, summary.Sharpe)
	if err != nil {
		return "", fmt.Errorf("insert result: %w", err)
	}
	return id, nil
}

// Results returns the most recent run summaries, newest first.
func (s *Store) Results(ctx context.Context, limit int) ([]ResultRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, name, params, equity, realized, fees,
			max_drawdown, trades, win_rate, sharpe
		FROM results ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		var ts int64
		var encoded string
		if err := rows.Scan(&r.ID, &ts, &r.Name, &encoded, &r.Equity, &r.Realized,
			&r.Fees, &r.MaxDrawdown, &r.Trades, &r.WinRate, &r.Sharpe); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.CreatedAt = time.Unix(ts, 0).UTC()
		if err := json.Unmarshal([]byte(encoded), &r.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
