package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"portfolio-tracker/internal/models"
)

// SQLiteBackend persists series in SQLite, one row per point plus a
// series row carrying the source and fetch time.
type SQLiteBackend struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteBackend opens (or creates) the database at dbPath.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	b := &SQLiteBackend{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return b, nil
}

// initSchema creates all required tables and indexes.
func (b *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS series (
		instrument TEXT NOT NULL,
		period TEXT NOT NULL,
		source TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		PRIMARY KEY (instrument, period)
	);

	CREATE TABLE IF NOT EXISTS points (
		instrument TEXT NOT NULL,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		close REAL NOT NULL,
		open REAL NOT NULL DEFAULT 0,
		high REAL NOT NULL DEFAULT 0,
		low REAL NOT NULL DEFAULT 0,
		volume INTEGER NOT NULL DEFAULT 0,
		UNIQUE(instrument, period, date)
	);

	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_points_key ON points(instrument, period);
	`

	_, err := b.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// SaveSeries replaces the stored series for entry.Key.
func (b *SQLiteBackend) SaveSeries(ctx context.Context, entry Entry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inst, period := string(entry.Key.Instrument), string(entry.Key.Period)

	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE instrument = ? AND period = ?`, inst, period); err != nil {
		return fmt.Errorf("failed to clear points: %w", err)
	}

	source := ""
	if entry.Series != nil {
		source = entry.Series.Source
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO series (instrument, period, source, fetched_at)
		VALUES (?, ?, ?, ?)
	`, inst, period, source, entry.FetchedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save series: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (instrument, period, date, close, open, high, low, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	if entry.Series != nil {
		for _, p := range entry.Series.Points {
			_, err := stmt.ExecContext(ctx, inst, period, p.Date.Format(models.DateLayout), p.Close, p.Open, p.High, p.Low, p.Volume)
			if err != nil {
				return fmt.Errorf("failed to insert point: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadSeries reads every persisted series.
func (b *SQLiteBackend) LoadSeries(ctx context.Context) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT instrument, period, source, fetched_at FROM series ORDER BY instrument, period`)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}

	var entries []Entry
	for rows.Next() {
		var inst, period, source string
		var fetchedAt time.Time
		if err := rows.Scan(&inst, &period, &source, &fetchedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan series: %w", err)
		}
		key := models.SeriesKey{Instrument: models.InstrumentID(inst), Period: models.Period(period)}
		entries = append(entries, Entry{
			Key:       key,
			Series:    &models.PriceSeries{Instrument: key.Instrument, Period: key.Period, Source: source},
			FetchedAt: fetchedAt,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating series: %w", err)
	}
	rows.Close()

	for i := range entries {
		points, err := b.getPoints(ctx, entries[i].Key)
		if err != nil {
			return nil, err
		}
		entries[i].Series.Points = points
	}

	return entries, nil
}

func (b *SQLiteBackend) getPoints(ctx context.Context, key models.SeriesKey) ([]models.PricePoint, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT date, close, open, high, low, volume
		FROM points
		WHERE instrument = ? AND period = ?
		ORDER BY date ASC
	`, string(key.Instrument), string(key.Period))
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		var date string
		if err := rows.Scan(&date, &p.Close, &p.Open, &p.High, &p.Low, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		p.Date, err = models.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("bad stored date %q: %w", date, err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}

	return points, nil
}

// DeleteSeries removes a persisted series.
func (b *SQLiteBackend) DeleteSeries(ctx context.Context, key models.SeriesKey) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inst, period := string(key.Instrument), string(key.Period)
	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE instrument = ? AND period = ?`, inst, period); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM series WHERE instrument = ? AND period = ?`, inst, period); err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}
	return tx.Commit()
}

// GetLastSync returns the last sync time for a data type.
func (b *SQLiteBackend) GetLastSync(dataType string) time.Time {
	b.mu.RLock()
	if t, ok := b.syncTimes[dataType]; ok {
		b.mu.RUnlock()
		return t
	}
	b.mu.RUnlock()

	var lastSync time.Time
	err := b.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	b.mu.Lock()
	b.syncTimes[dataType] = lastSync
	b.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (b *SQLiteBackend) SetLastSync(dataType string, t time.Time) error {
	_, err := b.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	b.mu.Lock()
	b.syncTimes[dataType] = t
	b.mu.Unlock()

	return nil
}
