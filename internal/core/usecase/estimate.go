package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

const defaultMaxDescriptionChars = 4000

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// EstimateGenerator produces a validated estimate from a composed prompt.
type EstimateGenerator interface {
	Generate(ctx context.Context, instruction, userText string) (*Generation, error)
}

type EstimateOptions struct {
	DefaultCurrency     string
	MaxDescriptionChars int
	TopK                int
}

type EstimateUseCase struct {
	searcher  ports.ManualSearcher
	rates     ports.RateProvider
	schema    ports.EstimateSchema
	generator EstimateGenerator
	journal   ports.EstimateJournal
	observer  ports.EstimateObserver
	logger    *slog.Logger
	opts      EstimateOptions
	now       func() time.Time
}

func NewEstimateUseCase(
	searcher ports.ManualSearcher,
	rates ports.RateProvider,
	schema ports.EstimateSchema,
	generator EstimateGenerator,
	journal ports.EstimateJournal,
	observer ports.EstimateObserver,
	logger *slog.Logger,
	opts EstimateOptions,
) *EstimateUseCase {
	if opts.MaxDescriptionChars <= 0 {
		opts.MaxDescriptionChars = defaultMaxDescriptionChars
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	opts.DefaultCurrency = strings.ToUpper(strings.TrimSpace(opts.DefaultCurrency))
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = domain.BaseCurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EstimateUseCase{
		searcher:  searcher,
		rates:     rates,
		schema:    schema,
		generator: generator,
		journal:   journal,
		observer:  observer,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Estimate runs one request end to end: retrieval and the rate lookup in
// parallel, then prompt composition, generation and reconciliation.
func (uc *EstimateUseCase) Estimate(ctx context.Context, req domain.EstimateRequest) (*domain.EstimateResult, error) {
	started := uc.now()

	description := strings.TrimSpace(req.Description)
	if err := uc.validate(description, req.Currency); err != nil {
		uc.observeEstimate("invalid", "", started)
		return nil, err
	}

	intent := DetectIntent(description)
	if strings.TrimSpace(req.Currency) != "" {
		intent = domain.IntentFinancial
	}
	currency := domain.BaseCurrency
	if intent == domain.IntentFinancial {
		currency = DetectCurrency(description, req.Currency, uc.opts.DefaultCurrency)
	}

	var (
		retrieval domain.RetrievalResult
		rate      domain.RateSnapshot
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		retrieval = uc.retrieve(groupCtx, description)
		return nil
	})
	group.Go(func() error {
		rate = uc.lookupRate(groupCtx, intent, currency)
		return nil
	})
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		uc.observeEstimate("canceled", intent, started)
		return nil, fmt.Errorf("estimate: %w", err)
	}

	task := EnhanceDescription(description, rate, intent)
	instruction := ComposeInstruction(task, retrieval.Context, uc.schema.Describe())

	generation, err := uc.generator.Generate(ctx, instruction, task)
	if err != nil {
		outcome := "provider_failure"
		if domain.IsKind(err, domain.ErrSchemaViolation) {
			outcome = "schema_violation"
		}
		uc.observeEstimate(outcome, intent, started)
		uc.logger.Error("estimate generation failed", "intent", intent, "currency", currency, "outcome", outcome, "error", err)
		return nil, err
	}

	result := &domain.EstimateResult{
		ID:          uuid.NewString(),
		Description: description,
		Estimate:    uc.reconcile(generation.Estimate, retrieval, rate),
		Intent:      intent,
		Currency:    currency,
		Rate:        rate,
		Retrieval:   retrieval,
		Model:       generation.Model,
		CreatedAt:   uc.now().UTC(),
	}

	if uc.observer != nil {
		uc.observer.ObserveTokens(generation.Model, generation.PromptTokens, generation.CompletionTokens)
	}
	uc.observeEstimate("ok", intent, started)
	uc.record(ctx, result)

	uc.logger.Info("estimate generated",
		"estimate_id", result.ID,
		"intent", intent,
		"currency", currency,
		"rate_source", rate.Source,
		"rate_degraded", rate.Degraded,
		"sources", len(retrieval.Sources),
		"retrieval_degraded", retrieval.Degraded,
		"attempts", generation.Attempts,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

func (uc *EstimateUseCase) validate(description, currency string) error {
	if description == "" {
		return domain.WrapError(domain.ErrInvalidInput, "estimate", errors.New("description is required"))
	}
	if n := utf8.RuneCountInString(description); n > uc.opts.MaxDescriptionChars {
		return domain.WrapError(domain.ErrInvalidInput, "estimate",
			fmt.Errorf("description has %d characters, limit is %d", n, uc.opts.MaxDescriptionChars))
	}
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" && !currencyCode.MatchString(currency) {
		return domain.WrapError(domain.ErrInvalidInput, "estimate", fmt.Errorf("currency %q is not an ISO 4217 code", currency))
	}
	return nil
}

// retrieve never fails the request: without grounding the model falls back to
// general knowledge and the result is flagged.
func (uc *EstimateUseCase) retrieve(ctx context.Context, description string) domain.RetrievalResult {
	started := time.Now()
	result, err := uc.searcher.Search(ctx, description, uc.opts.TopK)
	if err != nil {
		uc.logger.Warn("retrieval degraded to empty context", "error", err)
		result = domain.RetrievalResult{Sources: []string{}, IndexState: domain.IndexReady, Degraded: true}
	}
	if result.Sources == nil {
		result.Sources = []string{}
	}
	if uc.observer != nil {
		uc.observer.ObserveRetrieval(len(result.Sources), result.Degraded, time.Since(started))
	}
	return result
}

func (uc *EstimateUseCase) lookupRate(ctx context.Context, intent domain.Intent, currency string) domain.RateSnapshot {
	if intent != domain.IntentFinancial {
		return domain.RateSnapshot{
			Base:      domain.BaseCurrency,
			Target:    domain.BaseCurrency,
			Rate:      1.0,
			Source:    domain.RateSourceNotRequested,
			FetchedAt: uc.now().UTC(),
		}
	}
	rate := uc.rates.GetRate(ctx, currency)
	if uc.observer != nil {
		uc.observer.ObserveRate(currency, rate.Degraded)
	}
	return rate
}

// reconcile is the trust boundary for model output: evidence_source and
// exchange_rate always come from retrieval and the rate provider.
func (uc *EstimateUseCase) reconcile(estimate domain.Estimate, retrieval domain.RetrievalResult, rate domain.RateSnapshot) domain.Estimate {
	evidence := retrieval.EvidenceSource()
	if estimate.EvidenceSource != evidence {
		uc.logger.Debug("discarding model evidence_source", "model_value", estimate.EvidenceSource, "authoritative", evidence)
	}
	if estimate.ExchangeRate != rate.Rate {
		uc.logger.Debug("discarding model exchange_rate", "model_value", estimate.ExchangeRate, "authoritative", rate.Rate)
	}
	estimate.EvidenceSource = evidence
	estimate.ExchangeRate = rate.Rate
	if estimate.MaterialCosts == nil {
		estimate.MaterialCosts = []domain.CostLine{}
	}
	if estimate.LaborAndOHCosts == nil {
		estimate.LaborAndOHCosts = []domain.CostLine{}
	}
	return estimate
}

func (uc *EstimateUseCase) record(ctx context.Context, result *domain.EstimateResult) {
	if uc.journal == nil {
		return
	}
	if err := uc.journal.Record(context.WithoutCancel(ctx), result); err != nil {
		uc.logger.Warn("estimate journal write failed", "estimate_id", result.ID, "error", err)
	}
}

func (uc *EstimateUseCase) observeEstimate(outcome string, intent domain.Intent, started time.Time) {
	if uc.observer == nil {
		return
	}
	uc.observer.ObserveEstimate(outcome, intent, uc.now().Sub(started))
}

// GetEstimate reads a journaled estimate back.
func (uc *EstimateUseCase) GetEstimate(ctx context.Context, id string) (*domain.EstimateResult, error) {
	if uc.journal == nil {
		return nil, domain.WrapError(domain.ErrNotConfigured, "get estimate", errors.New("estimate journal is disabled"))
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get estimate", errors.New("id is required"))
	}
	return uc.journal.GetEstimate(ctx, id)
}
