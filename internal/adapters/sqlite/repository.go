package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockDataServer/internal/domain"
	"stockDataServer/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.PriceRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/stock_data.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Data directory checked/created", map[string]interface{}{"path": filepath.Dir(dbPath)})

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %v: %w", dbPath, err, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS stock_prices (
		ticker TEXT NOT NULL,
		date TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL DEFAULT 0,
		dividends REAL NOT NULL DEFAULT 0,
		stock_splits REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (ticker, date)
	);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveBars upserts the rows in a single transaction.
func (r *Repository) SaveBars(ctx context.Context, bars []domain.HistoricalBar) error {
	if len(bars) == 0 {
		return nil
	}
	const query = `
	INSERT INTO stock_prices (ticker, date, open, high, low, close, volume, dividends, stock_splits)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (ticker, date) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close,
		volume = excluded.volume, dividends = excluded.dividends, stock_splits = excluded.stock_splits`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v: %w", err, ports.ErrUpdateFailed)
	}
	defer tx.Rollback() // No-op after a successful commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %v: %w", err, ports.ErrUpdateFailed)
	}
	defer stmt.Close()

	for _, b := range bars {
		ticker := domain.NormalizeTicker(b.Ticker)
		_, err := stmt.ExecContext(ctx, ticker, b.Date.UTC().Format(domain.DateLayout),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Dividend, b.SplitRatio)
		if err != nil {
			return fmt.Errorf("failed to upsert %s on %s: %v: %w",
				ticker, b.Date.Format(domain.DateLayout), err, ports.ErrUpdateFailed)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price rows: %v: %w", err, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Price rows saved", map[string]interface{}{"rows": len(bars), "ticker": bars[0].Ticker})
	return nil
}

// FindByTicker retrieves all cached rows for a ticker, ordered by date ascending.
func (r *Repository) FindByTicker(ctx context.Context, ticker string) ([]domain.HistoricalBar, error) {
	const query = `
	SELECT ticker, date, open, high, low, close, volume, dividends, stock_splits
	FROM stock_prices
	WHERE ticker = ?
	ORDER BY date ASC`

	ticker = domain.NormalizeTicker(ticker)
	rows, err := r.db.QueryContext(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
	}
	defer rows.Close()

	bars := make([]domain.HistoricalBar, 0)
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price row for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
		}
		bars = append(bars, bar)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %v: %w", err, ports.ErrQueryFailed)
	}
	return bars, nil
}

// Exists reports whether any rows are cached for the ticker.
func (r *Repository) Exists(ctx context.Context, ticker string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM stock_prices WHERE ticker = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, domain.NormalizeTicker(ticker)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check cache for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
	}
	return exists, nil
}

// ListTickers returns the distinct cached tickers, sorted.
func (r *Repository) ListTickers(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT ticker FROM stock_prices ORDER BY ticker`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %v: %w", err, ports.ErrQueryFailed)
	}
	defer rows.Close()

	tickers := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %v: %w", err, ports.ErrQueryFailed)
		}
		tickers = append(tickers, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticker rows: %v: %w", err, ports.ErrQueryFailed)
	}
	return tickers, nil
}

// LatestDate returns the most recent cached date for the ticker.
func (r *Repository) LatestDate(ctx context.Context, ticker string) (time.Time, error) {
	const query = `SELECT MAX(date) FROM stock_prices WHERE ticker = ?`
	ticker = domain.NormalizeTicker(ticker)
	var latest sql.NullString
	if err := r.db.QueryRowContext(ctx, query, ticker).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
	}
	if !latest.Valid {
		return time.Time{}, fmt.Errorf("no cached prices for %s: %w", ticker, ports.ErrNotFound)
	}
	date, err := time.Parse(domain.DateLayout, latest.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q for %s: %v: %w", latest.String, ticker, err, ports.ErrQueryFailed)
	}
	return date, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanBar scans a row into a domain.HistoricalBar.
func scanBar(s scanner) (domain.HistoricalBar, error) {
	var b domain.HistoricalBar
	var date string
	err := s.Scan(&b.Ticker, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Dividend, &b.SplitRatio)
	if err != nil {
		return b, err
	}
	b.Date, err = time.Parse(domain.DateLayout, date)
	if err != nil {
		return b, fmt.Errorf("invalid stored date %q: %w", date, err)
	}
	return b, nil
}
