package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"carteira/internal/domain"
)

// Compile-time interface checks.
var _ FinancialsStore = (*SQLiteStore)(nil)
var _ BenchmarkStore = (*SQLiteStore)(nil)

// SQLiteStore implements FinancialsStore and BenchmarkStore backed by a
// SQLite database. Fundamentals are stored one row per (ticker, date,
// indicator) so that absent indicators stay absent rather than becoming
// zeros.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore with its schema in place.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS financials (
	ticker    TEXT NOT NULL,
	date      TEXT NOT NULL,
	indicator TEXT NOT NULL,
	value     REAL NOT NULL,
	PRIMARY KEY (ticker, date, indicator)
);
CREATE TABLE IF NOT EXISTS benchmarks (
	name  TEXT NOT NULL,
	date  TEXT NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (name, date)
);
`)
	return err
}

// ---------------------------------------------------------------------------
// FinancialsStore implementation
// ---------------------------------------------------------------------------

// SaveFinancials replaces the stored history for a ticker.
func (s *SQLiteStore) SaveFinancials(ctx context.Context, ticker string, rows []domain.FinancialsRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM financials WHERE ticker = ?`, ticker); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO financials (ticker, date, indicator, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		date := row.Date.Format(domain.DateLayout)
		for ind, val := range row.Values {
			if _, err := stmt.ExecContext(ctx, ticker, date, string(ind), val); err != nil {
				return fmt.Errorf("inserting %s %s %s: %w", ticker, date, ind, err)
			}
		}
	}
	return tx.Commit()
}

// ReadFinancials returns the stored history for a ticker in date order.
func (s *SQLiteStore) ReadFinancials(ctx context.Context, ticker string) ([]domain.FinancialsRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, indicator, value FROM financials WHERE ticker = ? ORDER BY date`, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FinancialsRow
	byDate := make(map[string]int)
	for rows.Next() {
		var dateStr, ind string
		var val float64
		if err := rows.Scan(&dateStr, &ind, &val); err != nil {
			return nil, err
		}
		idx, ok := byDate[dateStr]
		if !ok {
			date, err := time.Parse(domain.DateLayout, dateStr)
			if err != nil {
				return nil, fmt.Errorf("bad date %q for %s: %w", dateStr, ticker, err)
			}
			out = append(out, domain.FinancialsRow{
				Date:   date,
				Values: make(map[domain.Indicator]float64),
			})
			idx = len(out) - 1
			byDate[dateStr] = idx
		}
		out[idx].Values[domain.Indicator(ind)] = val
	}
	return out, rows.Err()
}

// ListTickers returns all distinct tickers with stored financials.
func (s *SQLiteStore) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM financials ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// ---------------------------------------------------------------------------
// BenchmarkStore implementation
// ---------------------------------------------------------------------------

// SaveSeries replaces the stored series for a benchmark name.
func (s *SQLiteStore) SaveSeries(ctx context.Context, name string, points []domain.SeriesPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM benchmarks WHERE name = ?`, name); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO benchmarks (name, date, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, name, p.Date.Format(domain.DateLayout), p.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReadSeries returns the stored series for a benchmark name in date order.
func (s *SQLiteStore) ReadSeries(ctx context.Context, name string) ([]domain.SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, value FROM benchmarks WHERE name = ? ORDER BY date`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SeriesPoint
	for rows.Next() {
		var dateStr string
		var val float64
		if err := rows.Scan(&dateStr, &val); err != nil {
			return nil, err
		}
		date, err := time.Parse(domain.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("bad date %q in series %s: %w", dateStr, name, err)
		}
		out = append(out, domain.SeriesPoint{Date: date, Value: val})
	}
	return out, rows.Err()
}
