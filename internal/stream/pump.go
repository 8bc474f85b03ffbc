package stream

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// PumpConfig holds configuration for the SQL projection pump
type PumpConfig struct {
	// ChangeLogTable is the change-log table written by the platform
	ChangeLogTable string

	// ReadTable is the read projection the pump maintains
	ReadTable string

	// BatchSize is the number of change-log rows drained per statement
	BatchSize int

	// ErrorBackoff is the sleep after a failed drain
	ErrorBackoff time.Duration
}

// DefaultPumpConfig returns sensible defaults
func DefaultPumpConfig() *PumpConfig {
	return &PumpConfig{
		ChangeLogTable: "dispatch_pool_changes",
		ReadTable:      "dispatch_pools_read",
		BatchSize:      200,
		ErrorBackoff:   5 * time.Second,
	}
}

// Pump drains a change-log table into a read projection. Each cycle runs
// ONE writable-CTE statement that selects a batch of unprocessed rows,
// upserts the INSERT rows, applies the UPDATE rows with null-preserving
// coalesce, and marks the batch processed - all atomically, so a crash
// between steps cannot drop or double-apply a change.
//
// Pacing adapts to load: a full batch loops immediately, a partial batch
// waits 100ms, an empty poll waits 1s.
type Pump struct {
	db     *sql.DB
	config *PumpConfig
	stmt   string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// lastError is the most recent drain error, nil when healthy
	lastError error
}

// NewPump creates a projection pump on an open Postgres handle
func NewPump(db *sql.DB, config *PumpConfig) *Pump {
	if config == nil {
		config = DefaultPumpConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 200
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 5 * time.Second
	}

	return &Pump{
		db:     db,
		config: config,
		stmt:   buildDrainStatement(config.ChangeLogTable, config.ReadTable),
	}
}

// buildDrainStatement assembles the single drain statement. The read
// table keys on the full colon-delimited code; the client, application
// and pool segments are re-derived on every upsert so the projection
// never goes stale against its own key.
func buildDrainStatement(changeLog, readTable string) string {
	return fmt.Sprintf(`
		WITH batch AS (
			SELECT id, op, code, name, concurrency, rate_limit_per_minute,
			       callback_url, timeout_ms, retries
			FROM %[1]s
			WHERE processed = FALSE
			ORDER BY id
			LIMIT $1
		),
		applied_inserts AS (
			INSERT INTO %[2]s (
				code, client_id, application, pool_code, name,
				concurrency, rate_limit_per_minute, callback_url,
				timeout_ms, retries, updated_at
			)
			SELECT
				code,
				split_part(code, ':', 1),
				split_part(code, ':', 2),
				split_part(code, ':', 3),
				name, concurrency, rate_limit_per_minute, callback_url,
				timeout_ms, retries, NOW()
			FROM batch
			WHERE op = 'INSERT'
			ON CONFLICT (code) DO UPDATE SET
				client_id = EXCLUDED.client_id,
				application = EXCLUDED.application,
				pool_code = EXCLUDED.pool_code,
				name = EXCLUDED.name,
				concurrency = EXCLUDED.concurrency,
				rate_limit_per_minute = EXCLUDED.rate_limit_per_minute,
				callback_url = EXCLUDED.callback_url,
				timeout_ms = EXCLUDED.timeout_ms,
				retries = EXCLUDED.retries,
				updated_at = NOW()
			RETURNING code
		),
		applied_updates AS (
			UPDATE %[2]s r SET
				name = COALESCE(b.name, r.name),
				concurrency = COALESCE(b.concurrency, r.concurrency),
				rate_limit_per_minute = COALESCE(b.rate_limit_per_minute, r.rate_limit_per_minute),
				callback_url = COALESCE(b.callback_url, r.callback_url),
				timeout_ms = COALESCE(b.timeout_ms, r.timeout_ms),
				retries = COALESCE(b.retries, r.retries),
				updated_at = NOW()
			FROM batch b
			WHERE b.op = 'UPDATE' AND r.code = b.code
			RETURNING r.code
		),
		marked AS (
			UPDATE %[1]s c SET processed = TRUE, processed_at = NOW()
			FROM batch b
			WHERE c.id = b.id
			RETURNING c.id
		)
		SELECT COUNT(*) FROM marked
	`, changeLog, readTable)
}

// Start launches the drain loop
func (p *Pump) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(ctx)

	slog.Info("Projection pump started",
		"changeLog", p.config.ChangeLogTable,
		"readTable", p.config.ReadTable,
		"batchSize", p.config.BatchSize)
}

// Stop stops the drain loop and waits for the in-flight cycle
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	slog.Info("Projection pump stopped")
}

// IsRunning returns true while the drain loop is active
func (p *Pump) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastError returns the most recent drain error, nil when healthy
func (p *Pump) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

func (p *Pump) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		processed, err := p.drainOnce(ctx)

		p.mu.Lock()
		p.lastError = err
		p.mu.Unlock()

		var delay time.Duration
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Projection drain failed", "error", err)
			delay = p.config.ErrorBackoff
		} else {
			delay = drainDelay(processed, p.config.BatchSize)
		}

		if delay == 0 {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// drainOnce runs a single drain statement and returns the number of
// change-log rows it marked processed
func (p *Pump) drainOnce(ctx context.Context) (int, error) {
	var processed int
	if err := p.db.QueryRowContext(ctx, p.stmt, p.config.BatchSize).Scan(&processed); err != nil {
		return 0, fmt.Errorf("drain projection batch: %w", err)
	}
	return processed, nil
}

// drainDelay returns the pause before the next cycle: keep going while
// batches come back full, ease off when the backlog thins out.
func drainDelay(processed, batchSize int) time.Duration {
	switch {
	case processed >= batchSize:
		return 0
	case processed > 0:
		return 100 * time.Millisecond
	default:
		return time.Second
	}
}

// CreateSchema creates the change-log and read projection tables
func (p *Pump) CreateSchema(ctx context.Context) error {
	changeLog := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			op VARCHAR(10) NOT NULL,
			code VARCHAR(255) NOT NULL,
			name VARCHAR(255),
			concurrency INT,
			rate_limit_per_minute INT,
			callback_url TEXT,
			timeout_ms INT,
			retries INT,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, p.config.ChangeLogTable)

	if _, err := p.db.ExecContext(ctx, changeLog); err != nil {
		return fmt.Errorf("create change-log table: %w", err)
	}

	pendingIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%[1]s_pending
		ON %[1]s(id)
		WHERE processed = FALSE
	`, p.config.ChangeLogTable)

	if _, err := p.db.ExecContext(ctx, pendingIndex); err != nil {
		return fmt.Errorf("create change-log index: %w", err)
	}

	readTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			code VARCHAR(255) PRIMARY KEY,
			client_id VARCHAR(255) NOT NULL,
			application VARCHAR(255) NOT NULL,
			pool_code VARCHAR(255) NOT NULL,
			name VARCHAR(255),
			concurrency INT,
			rate_limit_per_minute INT,
			callback_url TEXT,
			timeout_ms INT,
			retries INT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, p.config.ReadTable)

	if _, err := p.db.ExecContext(ctx, readTable); err != nil {
		return fmt.Errorf("create read projection table: %w", err)
	}

	return nil
}
