package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radiusdt/campaign-kpi/internal/cache"
	"github.com/radiusdt/campaign-kpi/internal/config"
	"github.com/radiusdt/campaign-kpi/internal/dashboard"
	"github.com/radiusdt/campaign-kpi/internal/database"
	"github.com/radiusdt/campaign-kpi/internal/kpi"
	"github.com/radiusdt/campaign-kpi/internal/metrics"
	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/scan"
	"github.com/radiusdt/campaign-kpi/internal/service"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

const maxBodyBytes = 1 << 20

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Store overrides the repositories otherwise built from DB.
	Store *storage.Store
	// Cache overrides the dashboard cache otherwise built from Redis.
	Cache cache.Cache
}

// Server wraps HTTP handlers and the KPI services.
type Server struct {
	services   *service.Services
	aggregator *dashboard.Aggregator
	db         *database.PostgresDB
	logger     *zap.Logger
	config     *config.Config
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := deps.Store
	if store == nil {
		if deps.DB != nil {
			store = deps.DB.Store()
		} else {
			logger.Warn("no database configured, using in-memory store")
			store = storage.NewMemoryStore()
		}
	}

	var observe scan.PageObserver
	if deps.Metrics != nil {
		observe = func(n int) { deps.Metrics.RecordScanPage("posts", n) }
	}
	scanner := scan.NewScanner(store.Posts, deps.Config.Scan.PageSize, observe)

	var dashCache cache.Cache = cache.Noop{}
	switch {
	case deps.Cache != nil:
		dashCache = deps.Cache
	case deps.Redis != nil && deps.Config.Cache.Enabled:
		dashCache = cache.NewRedisCache(deps.Redis.Client, deps.Config.Cache.TTL, deps.Config.Cache.Prefix)
	}

	engine := kpi.NewEngine(store.Campaigns, scanner, kpi.NewStore(store.KPIs, deps.Metrics), logger, deps.Metrics)
	classifier := kpi.NewClassifier(store.Accounts)
	aggregator := dashboard.NewAggregator(scanner, store.Campaigns, store.KPIs, classifier, dashCache, logger, deps.Metrics)

	s := &Server{
		services:   service.New(store, engine, classifier, aggregator, logger),
		aggregator: aggregator,
		db:         deps.DB,
		logger:     logger,
		config:     deps.Config,
	}

	r := chi.NewRouter()

	// Health check
	r.Get("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		r.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Campaigns
	r.Get("/campaigns", s.handleListCampaigns)
	r.Post("/campaigns", s.handleUpsertCampaign)
	r.Get("/campaigns/{id}", s.handleGetCampaign)
	r.Post("/campaigns/{id}/recalculate", s.handleRecalculateCampaign)

	// Accounts and campaign links
	r.Get("/accounts", s.handleListAccounts)
	r.Post("/accounts", s.handleUpsertAccount)
	r.Get("/accounts/{id}", s.handleGetAccount)
	r.Post("/campaigns/{id}/accounts/{accountID}", s.handleLinkAccount)
	r.Delete("/campaigns/{id}/accounts/{accountID}", s.handleUnlinkAccount)
	r.Put("/campaigns/{id}/accounts/{accountID}/gmv", s.handleSetGMV)

	// Posts
	r.Get("/posts", s.handleListPosts)
	r.Post("/posts", s.handleCreatePost)
	r.Get("/posts/{id}", s.handleGetPost)
	r.Put("/posts/{id}", s.handleUpdatePost)
	r.Delete("/posts/{id}", s.handleDeletePost)

	// KPIs
	r.Get("/kpis", s.handleListKPIs)
	r.Post("/kpis", s.handleCreateKPI)
	r.Patch("/kpis/{id}", s.handleUpdateKPITarget)
	r.Delete("/kpis/{id}", s.handleDeleteKPI)

	// Dashboard
	r.Get("/dashboard/summary", s.handleSummary)
	r.Get("/dashboard/engagement", s.handleBatchEngagement)
	r.Get("/dashboard/campaigns/{id}/engagement", s.handleCampaignEngagement)
	r.Get("/dashboard/campaigns/{id}/categories", s.handleCategoryBreakdown)

	return r
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Health(ctx); err != nil {
			s.logger.Warn("database health check failed", zap.Error(err))
			status["status"] = "degraded"
			status["database"] = "unreachable"
			s.jsonStatus(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	s.jsonResponse(w, status)
}

// ---- Helpers ----

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dest); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// serviceError maps a service error to a status code.
func (s *Server) serviceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInvalidCategory):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrConflict):
		s.errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrRecalculation):
		s.logger.Error("kpis stale after "+action, zap.Error(err))
		s.errorResponse(w, action+" saved but KPIs could not be recalculated and are stale", http.StatusInternalServerError)
	default:
		s.logger.Error("failed to "+action, zap.Error(err))
		s.errorResponse(w, "failed to "+action, http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// queryBool returns nil when the parameter is absent.
func queryBool(r *http.Request, key string) (*bool, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, false
	}
	return &b, true
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	s.jsonStatus(w, http.StatusOK, data)
}

func (s *Server) jsonStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
