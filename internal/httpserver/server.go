// Package httpserver wires the DataPlunge services into a chi router.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataplunge/dataplunge/internal/auth"
	"github.com/dataplunge/dataplunge/internal/config"
	"github.com/dataplunge/dataplunge/internal/database"
	"github.com/dataplunge/dataplunge/internal/ingest"
	"github.com/dataplunge/dataplunge/internal/metrics"
	"github.com/dataplunge/dataplunge/internal/middleware"
	"github.com/dataplunge/dataplunge/internal/oauth"
	"github.com/dataplunge/dataplunge/internal/reporting"
	"github.com/dataplunge/dataplunge/internal/storage"
)

// reportCacheTTL bounds how long a reporting aggregate may be served
// stale if an invalidation is missed.
const reportCacheTTL = 15 * time.Minute

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// repos groups one implementation of every repository interface.
type repos struct {
	users       storage.UserRepo
	tokens      storage.TokenRepo
	datasources storage.DatasourceRepo
	campaigns   storage.CampaignRepo
	metrics     storage.MetricsRepo
	reporting   storage.ReportingRepo
}

// Server holds the services behind the HTTP handlers.
type Server struct {
	authService      *auth.Service
	googleVerifier   *auth.GoogleVerifier
	tokenManager     *oauth.Manager
	providers        *oauth.Providers
	ingestService    *ingest.Service
	reportingService *reporting.Service
	datasources      storage.DatasourceRepo
	logger           *zap.Logger
}

// NewServer constructs an http.Handler with all routes registered.
// Without a database it runs on the in-memory store; without Redis the
// reporting cache degrades to always-miss.
func NewServer(deps *Dependencies) (http.Handler, error) {
	var r repos
	if deps.DB != nil {
		r = repos{
			users:       storage.NewPostgresUserRepo(deps.DB.Pool),
			tokens:      storage.NewPostgresTokenRepo(deps.DB.Pool),
			datasources: storage.NewPostgresDatasourceRepo(deps.DB.Pool),
			campaigns:   storage.NewPostgresCampaignRepo(deps.DB.Pool),
			metrics:     storage.NewPostgresMetricsRepo(deps.DB.Pool),
			reporting:   storage.NewPostgresReportingRepo(deps.DB.Pool),
		}
	} else {
		mem := storage.NewInMemoryStore()
		r = repos{
			users:       mem.Users(),
			tokens:      mem.Tokens(),
			datasources: mem.Datasources(),
			campaigns:   mem.Campaigns(),
			metrics:     mem.Metrics(),
			reporting:   mem.Reporting(),
		}
	}

	sessions, err := auth.NewTokenService(deps.Config.Auth.JWTSecret, deps.Config.Auth.SessionLifetime)
	if err != nil {
		return nil, err
	}
	authService := auth.NewService(r.users, auth.NewPasswordService(), sessions, deps.Logger)

	providers := oauth.NewProviders(deps.Config.OAuth)
	tokenManager := oauth.NewManager(r.tokens, providers, deps.Logger)

	var redisClient *redis.Client
	if deps.Redis != nil {
		redisClient = deps.Redis.Client
	}
	cache := reporting.NewCache(redisClient, reportCacheTTL, deps.Metrics, deps.Logger)
	reportingService := reporting.NewService(r.reporting, cache, deps.Logger)

	httpClient := &http.Client{Timeout: deps.Config.Ingest.HTTPTimeout}
	ingestService := ingest.NewService(
		ingest.NewGoogleAdsClient(httpClient, tokenManager, deps.Config.OAuth.GoogleAdsDeveloperToken),
		ingest.NewAnalyticsClient(httpClient, tokenManager),
		ingest.NewMetaClient(httpClient, tokenManager, deps.Config.OAuth.MetaAPIVersion),
		r.tokens,
		r.datasources,
		r.campaigns,
		r.metrics,
		cache,
		deps.Metrics,
		deps.Logger,
		deps.Config.Ingest,
	)

	s := &Server{
		authService:      authService,
		googleVerifier:   auth.NewGoogleVerifier(providers.SignIn()),
		tokenManager:     tokenManager,
		providers:        providers,
		ingestService:    ingestService,
		reportingService: reportingService,
		datasources:      r.datasources,
		logger:           deps.Logger,
	}

	return s.routes(deps), nil
}

func (s *Server) routes(deps *Dependencies) http.Handler {
	logging := middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics)
	recovery := middleware.NewRecoveryMiddleware(deps.Logger)
	rateLimit := middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Logger, deps.Metrics)
	authMW := middleware.NewAuthMiddleware(s.authService, deps.Logger)

	router := chi.NewRouter()
	router.Use(recovery.Handler)
	router.Use(logging.Handler)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{deps.Config.Server.FrontendBaseURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(rateLimit.Handler)

	router.Get("/health", s.handleHealth(deps))
	if deps.Config.Metrics.Enabled {
		router.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	router.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Use(rateLimit.HandlerPerIP)
			ar.Post("/register", s.handleRegister)
			ar.Post("/login", s.handleLogin)
			ar.Get("/google/login", s.handleGoogleLogin)
			ar.Post("/google/callback", s.handleGoogleCallback)
			ar.Group(func(pr chi.Router) {
				pr.Use(authMW.Handler)
				pr.Get("/me", s.handleMe)
			})
		})

		api.Group(func(pr chi.Router) {
			pr.Use(authMW.Handler)

			pr.Route("/google-ads", func(g chi.Router) {
				g.Get("/connect", s.handleGoogleAdsConnect)
				g.Post("/callback", s.handleGoogleAdsCallback)
				g.Get("/accounts", s.handleGoogleAdsAccounts)
				g.Post("/fetch-campaigns", s.handleGoogleAdsFetch)
				g.Delete("/disconnect", s.handleGoogleAdsDisconnect)
			})

			pr.Route("/ga", func(g chi.Router) {
				g.Get("/connect", s.handleAnalyticsConnect)
				g.Post("/callback", s.handleAnalyticsCallback)
				g.Get("/properties", s.handleAnalyticsProperties)
				g.Post("/select-property", s.handleAnalyticsSelectProperty)
				g.Post("/fetch-campaigns", s.handleAnalyticsFetch)
				g.Delete("/disconnect", s.handleAnalyticsDisconnect)
			})

			pr.Route("/meta", func(g chi.Router) {
				g.Get("/connect", s.handleMetaConnect)
				g.Post("/callback", s.handleMetaCallback)
				g.Get("/adaccounts", s.handleMetaAdAccounts)
				g.Post("/select-account", s.handleMetaSelectAccount)
				g.Post("/fetch-campaigns", s.handleMetaFetch)
				g.Delete("/disconnect", s.handleMetaDisconnect)
			})

			pr.Get("/providers/status", s.handleProviderStatus)

			pr.Route("/datasources", func(g chi.Router) {
				g.Get("/", s.handleListDatasources)
				g.Delete("/{id}", s.handleDeleteDatasource)
			})

			pr.Route("/reporting", func(g chi.Router) {
				g.Get("/filter-performance", s.handleFilterPerformance)
				g.Get("/daily-performance", s.handleDailyPerformance)
				g.Get("/aggregated-performance", s.handleAggregatedPerformance)
				g.Get("/campaigns", s.handleCampaignPerformance)
				g.Get("/monthly-performance", s.handleMonthlyPerformance)
				g.Get("/insights", s.handleInsights)
			})
		})
	})

	return router
}

// handleHealth reports process and dependency health.
func (s *Server) handleHealth(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if deps.DB != nil {
			if err := deps.DB.Health(r.Context()); err != nil {
				status["status"] = "degraded"
				status["database"] = err.Error()
			} else {
				status["database"] = "ok"
			}
		} else {
			status["database"] = "in-memory"
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(r.Context()); err != nil {
				status["redis"] = err.Error()
			} else {
				status["redis"] = "ok"
			}
		}

		code := http.StatusOK
		if status["status"] != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}
