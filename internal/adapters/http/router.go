package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kirillkom/collision-estimator/internal/config"
	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
	"github.com/kirillkom/collision-estimator/internal/observability/metrics"
)

const (
	serviceStatus   = "Collision Estimator Online"
	serviceMode     = "RAG-Enhanced"
	maxRequestBytes = 64 << 10
)

type Dependencies struct {
	Estimator   ports.EstimateService
	Indexer     ports.CorpusIndexer
	Estimates   ports.EstimateReader
	Metrics     *metrics.HTTPServerMetrics
	Logger      *slog.Logger
	APIDocument []byte
}

type Router struct {
	cfg       config.Config
	estimator ports.EstimateService
	indexer   ports.CorpusIndexer
	estimates ports.EstimateReader
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
	apiDoc    []byte
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		estimator: deps.Estimator,
		indexer:   deps.Indexer,
		estimates: deps.Estimates,
		metrics:   deps.Metrics,
		logger:    logger,
		apiDoc:    deps.APIDocument,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/", rt.home)
	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.yaml", rt.openAPIDocument)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Group(func(api chi.Router) {
		api.Use(rt.trafficControl)
		api.Post("/estimate", rt.createEstimate)
		api.Get("/v1/index", rt.indexStatus)
		api.Post("/v1/index/rebuild", rt.rebuildIndex)
		api.Get("/v1/estimates/{id}", rt.getEstimate)
	})
	return r
}

func (rt *Router) trafficControl(next http.Handler) http.Handler {
	var onReject rejectFunc
	if rt.metrics != nil {
		onReject = rt.metrics.RecordRejected
	}
	limited := backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, onReject)
	return rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
}

func (rt *Router) corsOrigins() []string {
	if len(rt.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return rt.cfg.CORSOrigins
}

func (rt *Router) home(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]string{"status": serviceStatus, "mode": serviceMode}
	if rt.indexer != nil {
		payload["index_state"] = string(rt.indexer.Status().State)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	if len(rt.apiDoc) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "api document is not available"})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rt.apiDoc)
}

type estimateRequest struct {
	Description string `json:"description"`
	Currency    string `json:"currency,omitempty"`
}

type estimateResponse struct {
	Verdict         string            `json:"final_technical_verdict"`
	MaterialCosts   []domain.CostLine `json:"material_costs"`
	LaborAndOHCosts []domain.CostLine `json:"labor_and_oh_costs"`
	EvidenceSource  string            `json:"evidence_source"`
	GrandTotal      float64           `json:"grand_total"`
	ExchangeRate    float64           `json:"exchange_rate"`

	EstimateID          string   `json:"estimate_id"`
	Currency            string   `json:"currency"`
	Intent              string   `json:"intent"`
	ExchangeRateApplied string   `json:"exchange_rate_applied"`
	RateDegraded        bool     `json:"rate_degraded"`
	RateSource          string   `json:"rate_source"`
	RateDegradedReason  string   `json:"rate_degraded_reason,omitempty"`
	EvidenceSources     []string `json:"evidence_sources"`
	RetrievalDegraded   bool     `json:"retrieval_degraded"`
	IndexState          string   `json:"index_state"`
	RequestedAnalysis   string   `json:"requested_analysis"`
	DataSource          string   `json:"data_source"`
	Model               string   `json:"model,omitempty"`
}

func (rt *Router) createEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestIDFromContext(r.Context())})
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "description is required", RequestID: requestIDFromContext(r.Context())})
		return
	}

	result, err := rt.estimator.Estimate(r.Context(), domain.EstimateRequest{
		Description: req.Description,
		Currency:    req.Currency,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEstimateResponse(result))
}

func toEstimateResponse(result *domain.EstimateResult) estimateResponse {
	sources := result.Retrieval.Sources
	if sources == nil {
		sources = []string{}
	}
	estimate := result.Estimate
	materials, labor := estimate.MaterialCosts, estimate.LaborAndOHCosts
	if materials == nil {
		materials = []domain.CostLine{}
	}
	if labor == nil {
		labor = []domain.CostLine{}
	}
	return estimateResponse{
		Verdict:             estimate.Verdict,
		MaterialCosts:       materials,
		LaborAndOHCosts:     labor,
		EvidenceSource:      estimate.EvidenceSource,
		GrandTotal:          estimate.GrandTotal,
		ExchangeRate:        estimate.ExchangeRate,
		EstimateID:          result.ID,
		Currency:            result.Currency,
		Intent:              string(result.Intent),
		ExchangeRateApplied: result.ExchangeRateApplied(),
		RateDegraded:        result.Rate.Degraded,
		RateSource:          string(result.Rate.Source),
		RateDegradedReason:  result.Rate.Reason,
		EvidenceSources:     sources,
		RetrievalDegraded:   result.Retrieval.Degraded,
		IndexState:          string(result.Retrieval.IndexState),
		RequestedAnalysis:   result.Description,
		DataSource:          dataSource(result),
		Model:               result.Model,
	}
}

func dataSource(result *domain.EstimateResult) string {
	manuals := "Technical manuals"
	if len(result.Retrieval.Sources) == 0 {
		manuals = "General repair knowledge"
	}
	switch result.Rate.Source {
	case domain.RateSourceLive:
		return manuals + " + Live Market Finance"
	case domain.RateSourceFallback:
		return manuals + " + Fallback exchange rate"
	default:
		return manuals
	}
}

func (rt *Router) indexStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.indexer.Status())
}

func (rt *Router) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	status, err := rt.indexer.Rebuild(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) getEstimate(w http.ResponseWriter, r *http.Request) {
	if rt.estimates == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "estimate journal is disabled", RequestID: requestIDFromContext(r.Context())})
		return
	}
	result, err := rt.estimates.GetEstimate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, newErrorResponse(r, err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errors.New("request body is too large")
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		default:
			return errors.New("invalid json")
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
