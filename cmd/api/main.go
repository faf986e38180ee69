package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	limitermw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/arkan-dev/backend-mall/internal/address"
	"github.com/arkan-dev/backend-mall/internal/auth"
	"github.com/arkan-dev/backend-mall/internal/cart"
	"github.com/arkan-dev/backend-mall/internal/catalog"
	"github.com/arkan-dev/backend-mall/internal/checkout"
	"github.com/arkan-dev/backend-mall/internal/common"
	"github.com/arkan-dev/backend-mall/internal/config"
	"github.com/arkan-dev/backend-mall/internal/coupon"
	"github.com/arkan-dev/backend-mall/internal/health"
	"github.com/arkan-dev/backend-mall/internal/integral"
	"github.com/arkan-dev/backend-mall/internal/obs"
	"github.com/arkan-dev/backend-mall/internal/order"
	"github.com/arkan-dev/backend-mall/internal/pricing"
	"github.com/arkan-dev/backend-mall/internal/shipping"
	"github.com/arkan-dev/backend-mall/internal/stock"
	"github.com/arkan-dev/backend-mall/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "mall")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "mall-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "mall-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close asynq client")
		}
	}()

	couponEngine := &coupon.Engine{
		Providers:          []coupon.Provider{coupon.PgProvider{Pool: pool}},
		Evaluator:          coupon.RuleEvaluator{Scale: cfg.CurrencyScale},
		MaxEvaluations:     cfg.CouponMaxEvaluations,
		MaxRecommendations: cfg.CouponMaxRecommendations,
		Scale:              cfg.CurrencyScale,
		Logger:             logger,
	}
	priceEngine := pricing.NewEngine(cfg.CurrencyScale, logger,
		pricing.GoodsCalculator{Scale: cfg.CurrencyScale},
		coupon.Calculator{Engine: couponEngine, Scale: cfg.CurrencyScale},
	)

	stockStore := stock.PgStore{Pool: pool}
	addressResolver := address.PgResolver{Pool: pool}

	checkoutSvc := &checkout.Service{
		Pricing:       priceEngine,
		Catalog:       catalog.PgResolver{Pool: pool},
		Stock:         stock.Validator{Svc: stockStore, LowStockThreshold: cfg.LowStockThreshold},
		StockOperator: stockStore,
		Shipping: shipping.Calculator{
			Templates: shipping.PgTemplateStore{Pool: pool},
			Areas:     shipping.PgAreaStore{Pool: pool},
			Addresses: addressResolver,
			Scale:     cfg.CurrencyScale,
		},
		Addresses:     addressResolver,
		Ledger:        coupon.RedisLedger{R: redisClient, LockTTL: cfg.CouponLockTTL},
		Allocations:   coupon.AllocationStore{Pool: pool},
		Orders:        order.Store{Pool: pool},
		Integral:      integralService(pool),
		Cart:          cart.PgManager{Pool: pool},
		Tasks:         tasks.Enqueuer{Client: asynqClient, Logger: logger},
		Scale:         cfg.CurrencyScale,
		AutoCancelTTL: cfg.OrderAutoCancelTTL,
		Logger:        logger,
	}
	checkoutHandler := checkout.Handler{
		Svc:      checkoutSvc,
		Coupons:  couponEngine,
		Validate: validator.New(),
		Logger:   logger,
	}

	authMiddleware := auth.Middleware{Secret: []byte(cfg.JWTSecret)}
	idem := common.IdempotencyGuard{R: redisClient, TTL: cfg.IdempotencyTTL}

	rate, err := limiter.NewRateFromFormatted(cfg.CheckoutRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse checkout rate limit")
	}
	limiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "rl:checkout"})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	checkoutLimiter := limitermw.NewMiddleware(limiter.New(limiterStore, rate))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", newPprofMux())
	}

	healthHandler := health.Handler{
		Dependencies: map[string]health.Probe{
			"db":    func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/checkout", func(c chi.Router) {
			c.Use(authMiddleware.RequireAuth)
			c.Use(checkoutLimiter.Handler)
			c.With(idem.Middleware).Mount("/", checkoutHandler.Routes())
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

// integralService selects the live points ledger, or the explicit no-op when
// the deployment disables it.
func integralService(pool *pgxpool.Pool) integral.Service {
	if !envBool("INTEGRAL_ENABLED", true) {
		return integral.Unavailable{}
	}
	return integral.PgService{Pool: pool}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}
