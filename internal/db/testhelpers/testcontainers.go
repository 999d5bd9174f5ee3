package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yusuke746/trading-system/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer holds the testcontainer instance and connection details
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
	cleanupFuncs  []func()
	t             *testing.T
}

// SetupTestDatabase creates a plain PostgreSQL testcontainer. The schema has
// no TimescaleDB hypertables or pgvector columns, so a stock postgres image
// is enough.
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("trading_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	// Get connection string
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Create test database connection
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to parse connection string: %v", err)
	}

	// Configure connection pool
	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// Create pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create connection pool: %v", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to ping database: %v", err)
	}

	database := &db.DB{}
	database.SetPool(pool)

	tc := &PostgresContainer{
		Container:     container,
		ConnectionStr: connStr,
		DB:            database,
		cleanupFuncs:  []func(){},
		t:             t,
	}

	// Set up cleanup
	t.Cleanup(func() {
		tc.Cleanup()
	})

	return tc
}

// ApplyMigrations runs SQL migrations from the migrations directory
func (tc *PostgresContainer) ApplyMigrations(migrationsPath string) error {
	tc.t.Helper()

	ctx := context.Background()
	pool := tc.DB.Pool()

	// Read all migration files in order
	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}

	// Sort files to ensure they run in order (001, 002, 003, etc.)
	// This works because files are named with numeric prefixes
	sort := func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	}

	// Simple bubble sort for the file list
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			if !sort(i, j) {
				files[i], files[j] = files[j], files[i]
			}
		}
	}

	// Apply each migration in order
	for _, migrationFile := range files {
		tc.t.Logf("Applying migration: %s", filepath.Base(migrationFile))

		sqlBytes, err := os.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		schema := string(sqlBytes)

		// Execute schema
		_, err = pool.Exec(ctx, schema)
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", filepath.Base(migrationFile), err)
		}
	}

	return nil
}

// ApplyMigrationsLegacy applies the trading schema inline, for a test that
// wants a ready database without reaching out to the migrations directory.
func (tc *PostgresContainer) ApplyMigrationsLegacy() error {
	tc.t.Helper()

	ctx := context.Background()
	pool := tc.DB.Pool()

	schema := `
CREATE TABLE IF NOT EXISTS signals (
    id           UUID PRIMARY KEY,
    received_at  TIMESTAMPTZ NOT NULL,
    symbol       TEXT NOT NULL,
    source       TEXT NOT NULL,
    signal_type  TEXT NOT NULL,
    event        TEXT NOT NULL,
    direction    TEXT,
    price        DOUBLE PRECISION NOT NULL,
    tf           INTEGER,
    raw          JSONB,
    processed    BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS ai_decisions (
    id               UUID PRIMARY KEY,
    created_at       TIMESTAMPTZ NOT NULL,
    signal_ids       TEXT[] NOT NULL,
    decision         TEXT NOT NULL,
    confidence       DOUBLE PRECISION NOT NULL,
    ev_score         DOUBLE PRECISION NOT NULL,
    reason           TEXT,
    wait_scope       TEXT,
    wait_condition   TEXT,
    structured_data  JSONB,
    score_breakdown  JSONB,
    setup_type       TEXT,
    session          TEXT
);

CREATE TABLE IF NOT EXISTS executions (
    id             UUID PRIMARY KEY,
    created_at     TIMESTAMPTZ NOT NULL,
    ai_decision_id UUID REFERENCES ai_decisions (id),
    symbol         TEXT NOT NULL,
    direction      TEXT NOT NULL,
    order_type     TEXT NOT NULL,
    lot_size       DOUBLE PRECISION NOT NULL,
    entry_price    DOUBLE PRECISION NOT NULL,
    sl             DOUBLE PRECISION NOT NULL,
    tp             DOUBLE PRECISION NOT NULL,
    ticket         BIGINT,
    success        BOOLEAN NOT NULL,
    error          TEXT
);

CREATE TABLE IF NOT EXISTS trade_results (
    id                 UUID PRIMARY KEY,
    closed_at          TIMESTAMPTZ NOT NULL,
    execution_id       UUID REFERENCES executions (id),
    ticket             BIGINT NOT NULL,
    outcome            TEXT NOT NULL,
    pnl_usd            DOUBLE PRECISION NOT NULL,
    pnl_pips           DOUBLE PRECISION,
    duration_min       DOUBLE PRECISION,
    partial_close_pnl  DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS wait_history (
    id             UUID PRIMARY KEY,
    created_at     TIMESTAMPTZ NOT NULL,
    ai_decision_id UUID,
    wait_scope     TEXT,
    wait_condition TEXT,
    reeval_count   INTEGER NOT NULL DEFAULT 0,
    final_status   TEXT NOT NULL,
    resolved_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scoring_history (
    id               UUID PRIMARY KEY,
    created_at       TIMESTAMPTZ NOT NULL,
    signal_direction TEXT,
    regime           TEXT,
    total_score      DOUBLE PRECISION NOT NULL,
    decision         TEXT NOT NULL,
    breakdown        JSONB,
    outcome          TEXT,
    pnl_usd          DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS system_events (
    id         UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    event      TEXT NOT NULL,
    detail     TEXT,
    level      TEXT NOT NULL
);
`

	// Execute schema
	_, err := pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// AddCleanup registers a cleanup function to be called during teardown
func (tc *PostgresContainer) AddCleanup(fn func()) {
	tc.cleanupFuncs = append(tc.cleanupFuncs, fn)
}

// Cleanup terminates the container and runs cleanup functions
func (tc *PostgresContainer) Cleanup() {
	ctx := context.Background()

	// Run cleanup functions in reverse order
	for i := len(tc.cleanupFuncs) - 1; i >= 0; i-- {
		tc.cleanupFuncs[i]()
	}

	// Close database connection
	if tc.DB != nil {
		tc.DB.Close()
	}

	// Terminate container
	if tc.Container != nil {
		if err := tc.Container.Terminate(ctx); err != nil {
			tc.t.Logf("Failed to terminate container: %v", err)
		}
	}
}

// TruncateAllTables clears all data from tables (useful for test isolation)
func (tc *PostgresContainer) TruncateAllTables() error {
	ctx := context.Background()
	pool := tc.DB.Pool()

	tables := []string{
		"trade_results",
		"executions",
		"wait_history",
		"scoring_history",
		"system_events",
		"ai_decisions",
		"signals",
	}

	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	return nil
}

// ExecuteSQL executes arbitrary SQL (useful for test setup)
func (tc *PostgresContainer) ExecuteSQL(sql string) error {
	ctx := context.Background()
	pool := tc.DB.Pool()

	_, err := pool.Exec(ctx, sql)
	return err
}
