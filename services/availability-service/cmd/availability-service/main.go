package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slotwise/slotwise/libs/config"
	"github.com/slotwise/slotwise/libs/db"
	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/libs/kafkax"
	otelx "github.com/slotwise/slotwise/libs/otel"
	"github.com/slotwise/slotwise/libs/runtime"
	"github.com/slotwise/slotwise/services/availability-service/internal/cache"
	"github.com/slotwise/slotwise/services/availability-service/internal/engine"
	"github.com/slotwise/slotwise/services/availability-service/internal/handlers"
	"github.com/slotwise/slotwise/services/availability-service/internal/outbox"
	"github.com/slotwise/slotwise/services/availability-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// demoCatalog backs the service when no database is configured, which is the
// local-development default.
func demoCatalog() *handlers.StaticCatalog {
	weekdays := func() map[time.Weekday]engine.WorkingDay {
		hours := make(map[time.Weekday]engine.WorkingDay, 5)
		for d := time.Monday; d <= time.Friday; d++ {
			hours[d] = engine.WorkingDay{Weekday: d, Start: "09:00", End: "17:00", Working: true}
		}
		return hours
	}
	return &handlers.StaticCatalog{
		Services: map[string]*engine.Service{
			"haircut": {
				ID:              "haircut",
				Name:            "Haircut",
				DurationMinutes: 45,
				Category:        "hair",
				Price:           "45.00",
			},
			"massage": {
				ID:                  "massage",
				Name:                "Deep Tissue Massage",
				DurationMinutes:     60,
				BufferAfterMinutes:  15,
				BufferBeforeMinutes: 5,
				RequiredSkills:      engine.NewStringSet("massage"),
				Category:            "spa",
				Price:               "90.00",
			},
		},
		StaffPool: []*engine.Staff{
			{
				ID:              "staff-1",
				Name:            "Alex",
				Active:          true,
				Skills:          engine.NewStringSet("haircut", "massage"),
				Specializations: engine.NewStringSet("spa"),
				WorkingHours:    weekdays(),
			},
			{
				ID:           "staff-2",
				Name:         "Sam",
				Active:       true,
				Skills:       engine.NewStringSet("haircut"),
				WorkingHours: weekdays(),
			},
		},
	}
}

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		ledger  engine.Ledger
		catalog handlers.Catalog
		checks  []runtime.ReadyCheck
	)

	dbURL := config.String("DATABASE_URL", "")
	if dbURL != "" {
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		outboxRepo := outbox.NewRepository(pool)
		ledger = storage.NewLedgerRepository(pool, outboxRepo, logger)
		catalog = storage.NewScheduleRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		brokers := config.String("KAFKA_BROKERS", "")
		if brokers != "" {
			publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
				Brokers:   brokers,
				PollEvery: 2 * time.Second,
				BatchSize: 50,
			})
			go publisher.Run(ctx)
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	} else {
		logger.Info("no DATABASE_URL set, using in-memory ledger and demo catalog")
		ledger = engine.NewMemoryLedger()
		catalog = demoCatalog()
	}

	eng := engine.New(ledger,
		engine.WithLogger(logger),
		engine.WithWorkers(config.Int("AVAILABILITY_WORKERS", 8)),
	)

	var (
		slotCache *cache.SlotCache
		limiter   httpx.Middleware
	)
	redisAddr := config.String("REDIS_ADDR", "")
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		slotCache = cache.NewSlotCache(rdb, time.Duration(config.Int("SLOT_CACHE_TTL_SECONDS", 60))*time.Second)
		limiter = httpx.NewRedisRateLimiter(rdb, 120, time.Minute, service).Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		limiter = httpx.NewRateLimiter(120, time.Minute).Middleware()
	}

	handler := handlers.NewAvailabilityHandler(eng, catalog, slotCache, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handler.Register(mux)
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id")),
			MaxAge:         time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		limiter,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
