package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockDataServer/internal/domain"
	"stockDataServer/internal/ports"
)

// Repository implements ports.PriceRepository on PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger ports.Logger
}

// Config holds configuration for the PostgreSQL repository.
type Config struct {
	DatabaseURL string
	Logger      ports.Logger
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %v: %w", err, ports.ErrConfigurationError)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %v: %w", err, ports.ErrDBConnection)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %v: %w", err, ports.ErrDBConnection)
	}

	return p, nil
}

// NewRepository connects to PostgreSQL and ensures the schema exists.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for PostgreSQL repository")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required: %w", ports.ErrConfigurationError)
	}

	pool, err := Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		cfg.Logger.Error(ctx, err, "PostgreSQL repository initialization failed")
		return nil, err
	}

	repo := NewRepositoryFromPool(pool, cfg.Logger)
	if err := repo.initializeSchema(ctx); err != nil {
		pool.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(ctx, err, "PostgreSQL repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(ctx, "PostgreSQL connection established and schema verified")
	return repo, nil
}

// NewRepositoryFromPool wraps an existing pool. The schema is not touched.
func NewRepositoryFromPool(pool *pgxpool.Pool, logger ports.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS stock_prices (
		ticker TEXT NOT NULL,
		date DATE NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		dividends DOUBLE PRECISION NOT NULL DEFAULT 0,
		stock_splits DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (ticker, date)
	)`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.logger.Info(context.Background(), "Closing PostgreSQL connection pool")
	r.pool.Close()
	return nil
}

// SaveBars upserts the rows in one transaction using a pipelined batch.
func (r *Repository) SaveBars(ctx context.Context, bars []domain.HistoricalBar) error {
	if len(bars) == 0 {
		return nil
	}
	const query = `
	INSERT INTO stock_prices (ticker, date, open, high, low, close, volume, dividends, stock_splits)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (ticker, date) DO UPDATE SET
		open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close,
		volume = EXCLUDED.volume, dividends = EXCLUDED.dividends, stock_splits = EXCLUDED.stock_splits`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, domain.NormalizeTicker(b.Ticker), domain.TruncateToDay(b.Date),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Dividend, b.SplitRatio)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d price rows: %v: %w", len(bars), err, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Price rows saved", map[string]interface{}{"rows": len(bars), "ticker": bars[0].Ticker})
	return nil
}

// FindByTicker retrieves all cached rows for a ticker, ordered by date ascending.
func (r *Repository) FindByTicker(ctx context.Context, ticker string) ([]domain.HistoricalBar, error) {
	ticker = domain.NormalizeTicker(ticker)
	rows, err := r.pool.Query(ctx,
		`SELECT ticker, date, open, high, low, close, volume, dividends, stock_splits
		 FROM stock_prices WHERE ticker = $1 ORDER BY date ASC`,
		ticker,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
	}
	defer rows.Close()

	bars, err := collectBars(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read prices for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
	}
	return bars, nil
}

// Exists reports whether any rows are cached for the ticker.
func (r *Repository) Exists(ctx context.Context, ticker string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_prices WHERE ticker = $1)`,
		domain.NormalizeTicker(ticker),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cache for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
	}
	return exists, nil
}

// ListTickers returns the distinct cached tickers, sorted.
func (r *Repository) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ticker FROM stock_prices ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %v: %w", err, ports.ErrQueryFailed)
	}
	tickers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tickers: %v: %w", err, ports.ErrQueryFailed)
	}
	if tickers == nil {
		tickers = []string{}
	}
	return tickers, nil
}

// LatestDate returns the most recent cached date for the ticker.
func (r *Repository) LatestDate(ctx context.Context, ticker string) (time.Time, error) {
	ticker = domain.NormalizeTicker(ticker)
	var latest *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(date) FROM stock_prices WHERE ticker = $1`, ticker).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date for %s: %v: %w", ticker, err, ports.ErrQueryFailed)
	}
	if latest == nil {
		return time.Time{}, fmt.Errorf("no cached prices for %s: %w", ticker, ports.ErrNotFound)
	}
	return domain.TruncateToDay(*latest), nil
}

// --- scan helpers ---

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectBars(rows rowsIter) ([]domain.HistoricalBar, error) {
	out := make([]domain.HistoricalBar, 0)
	for rows.Next() {
		var b domain.HistoricalBar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.Dividend, &b.SplitRatio); err != nil {
			return nil, err
		}
		b.Date = domain.TruncateToDay(b.Date)
		out = append(out, b)
	}
	return out, rows.Err()
}
