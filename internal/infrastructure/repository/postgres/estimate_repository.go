package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

// EstimateRepository journals reconciled estimates. The full result is kept
// as JSONB; the scalar columns exist for ad-hoc reporting.
type EstimateRepository struct {
	db *sql.DB
}

func NewEstimateRepository(db *sql.DB) *EstimateRepository {
	return &EstimateRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *EstimateRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS estimates (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	intent TEXT NOT NULL,
	currency TEXT NOT NULL,
	exchange_rate DOUBLE PRECISION NOT NULL,
	rate_degraded BOOLEAN NOT NULL DEFAULT FALSE,
	retrieval_degraded BOOLEAN NOT NULL DEFAULT FALSE,
	evidence_source TEXT NOT NULL DEFAULT '',
	grand_total DOUBLE PRECISION NOT NULL,
	model TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *EstimateRepository) Record(ctx context.Context, result *domain.EstimateResult) error {
	if result == nil || result.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record estimate", errors.New("estimate id is required"))
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal estimate: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO estimates (
	id, description, intent, currency, exchange_rate, rate_degraded, retrieval_degraded, evidence_source, grand_total, model, payload, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		result.ID, result.Description, string(result.Intent), result.Currency, result.Rate.Rate,
		result.Rate.Degraded, result.Retrieval.Degraded, result.Estimate.EvidenceSource,
		result.Estimate.GrandTotal, result.Model, payload, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}
	return nil
}

func (r *EstimateRepository) GetEstimate(ctx context.Context, id string) (*domain.EstimateResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT payload
FROM estimates
WHERE id = $1
`, id)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get estimate", fmt.Errorf("estimate %s", id))
		}
		return nil, fmt.Errorf("scan estimate: %w", err)
	}

	var result domain.EstimateResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal estimate: %w", err)
	}
	return &result, nil
}
