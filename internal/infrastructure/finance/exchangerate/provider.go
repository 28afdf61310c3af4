package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL  = "https://v6.exchangerate-api.com/v6"
	DefaultFallback = 1100.0
	DefaultTimeout  = 5 * time.Second

	operation = "exchangerate.latest"
)

var (
	errMissingKey   = errors.New("api key not configured")
	errUnknownCode  = errors.New("currency code not in conversion_rates")
	errNotSuccess   = errors.New("provider result is not success")
	errInvalidValue = errors.New("provider returned a non-positive rate")
)

type Config struct {
	BaseURL  string
	APIKey   string
	Fallback float64
	Timeout  time.Duration
}

// Provider looks up USD conversion rates from ExchangeRate-API v6. It never
// fails: every error path yields the fallback rate marked degraded.
type Provider struct {
	baseURL    string
	apiKey     string
	fallback   float64
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Fallback <= 0 {
		cfg.Fallback = DefaultFallback
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		fallback:   cfg.Fallback,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		executor:   executor,
		logger:     logger,
		now:        time.Now,
	}
}

type latestResponse struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("exchangerate status %d", e.code)
}

func (p *Provider) GetRate(ctx context.Context, target string) domain.RateSnapshot {
	target = strings.ToUpper(strings.TrimSpace(target))
	snapshot := domain.RateSnapshot{
		Base:      domain.BaseCurrency,
		Target:    target,
		FetchedAt: p.now().UTC(),
	}
	if target == domain.BaseCurrency {
		snapshot.Rate = 1.0
		snapshot.Source = domain.RateSourceIdentity
		return snapshot
	}
	if p.apiKey == "" {
		return p.degrade(snapshot, errMissingKey)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rates, err := p.fetch(ctx)
	if err != nil {
		return p.degrade(snapshot, err)
	}
	rate, ok := rates[target]
	if !ok {
		return p.degrade(snapshot, fmt.Errorf("%w: %s", errUnknownCode, target))
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return p.degrade(snapshot, errInvalidValue)
	}

	snapshot.Rate = rate
	snapshot.Source = domain.RateSourceLive
	return snapshot
}

func (p *Provider) fetch(ctx context.Context) (map[string]float64, error) {
	var rates map[string]float64
	call := func(ctx context.Context) error {
		r, err := p.fetchOnce(ctx)
		if err != nil {
			return err
		}
		rates = r
		return nil
	}
	if p.executor == nil {
		return rates, call(ctx)
	}
	return rates, p.executor.Execute(ctx, operation, call, classify)
}

func (p *Provider) fetchOnce(ctx context.Context) (map[string]float64, error) {
	endpoint := p.baseURL + "/" + url.PathEscape(p.apiKey) + "/latest/" + domain.BaseCurrency
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create rate request: %w", redactURL(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate request: %w", redactURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}

	var payload latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rate response: %w", err)
	}
	if payload.Result != "success" {
		if payload.ErrorType != "" {
			return nil, fmt.Errorf("%w: %s", errNotSuccess, payload.ErrorType)
		}
		return nil, errNotSuccess
	}
	return payload.ConversionRates, nil
}

func (p *Provider) degrade(snapshot domain.RateSnapshot, cause error) domain.RateSnapshot {
	reason := cause.Error()
	if resilience.IsCircuitOpen(cause) {
		reason = "circuit open: " + reason
	}
	p.logger.Warn("exchange rate degraded to fallback",
		"target", snapshot.Target,
		"fallback", p.fallback,
		"error", reason,
	)
	snapshot.Rate = p.fallback
	snapshot.Degraded = true
	snapshot.Source = domain.RateSourceFallback
	snapshot.Reason = reason
	return snapshot
}

// redactURL strips the request URL, which embeds the API key, from transport
// errors.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s exchangerate: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func classify(err error) resilience.ErrorClassification {
	var status *statusError
	if errors.As(err, &status) {
		return resilience.ClassifyHTTPStatus(status.code)
	}
	if errors.Is(err, errNotSuccess) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ClassifyTransport(err)
}
