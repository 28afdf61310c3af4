package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*EstimateRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &EstimateRepository{db: db}, mock, func() { _ = db.Close() }
}

func sampleResult() *domain.EstimateResult {
	return &domain.EstimateResult{
		ID:          "est-1",
		Description: "Crushed front bumper, quote in ARS",
		Intent:      domain.IntentFinancial,
		Currency:    "ARS",
		Rate:        domain.RateSnapshot{Base: "USD", Target: "ARS", Rate: 1100, Degraded: true, Source: domain.RateSourceFallback},
		Estimate: domain.Estimate{
			Verdict:        "Replace bumper cover.",
			EvidenceSource: "bumper.pdf",
			GrandTotal:     275000,
			ExchangeRate:   1100,
		},
		Model:     "gpt-4o",
		CreatedAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
}

func TestRecordInsertsScalarsAndPayload(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	result := sampleResult()
	mock.ExpectExec("INSERT INTO estimates").
		WithArgs("est-1", result.Description, "financial", "ARS", 1100.0, true, false, "bumper.pdf",
			275000.0, "gpt-4o", sqlmock.AnyArg(), result.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Record(context.Background(), result); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordRequiresID(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	err := repo.Record(context.Background(), &domain.EstimateResult{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetEstimateDecodesPayload(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	payload, err := json.Marshal(sampleResult())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mock.ExpectQuery("SELECT payload").
		WithArgs("est-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := repo.GetEstimate(context.Background(), "est-1")
	if err != nil {
		t.Fatalf("GetEstimate() error = %v", err)
	}
	if got.ID != "est-1" || got.Rate.Rate != 1100 || !got.Rate.Degraded || got.Estimate.GrandTotal != 275000 {
		t.Fatalf("unexpected estimate %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetEstimateReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT payload").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetEstimate(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026101801)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS estimates").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
