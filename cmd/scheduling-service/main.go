package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fieldline/scheduling-service/internal/booking"
	"github.com/fieldline/scheduling-service/internal/consumer"
	"github.com/fieldline/scheduling-service/internal/handlers"
	"github.com/fieldline/scheduling-service/internal/inbox"
	"github.com/fieldline/scheduling-service/internal/outbox"
	"github.com/fieldline/scheduling-service/internal/projection"
	"github.com/fieldline/scheduling-service/internal/slots"
	"github.com/fieldline/scheduling-service/internal/storage"
	"github.com/fieldline/scheduling-service/libs/auth"
	"github.com/fieldline/scheduling-service/libs/config"
	"github.com/fieldline/scheduling-service/libs/db"
	"github.com/fieldline/scheduling-service/libs/httpx"
	"github.com/fieldline/scheduling-service/libs/kafkax"
	otelx "github.com/fieldline/scheduling-service/libs/otel"
	"github.com/fieldline/scheduling-service/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	projector := projection.New(repo, logger)
	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "scheduling-service"),
			Topic:   topic,
		}, projector.Handle)
		go eventConsumer.Run(ctx)
	}
	startConsumer(config.String("KAFKA_TOPIC_PROVIDERS", "providers.provider.upserted.v1"))
	startConsumer(config.String("KAFKA_TOPIC_AVAILABILITY", "providers.availability.updated.v1"))
	startConsumer(config.String("KAFKA_TOPIC_CATALOG", "catalog.service_type.upserted.v1"))

	generator := slots.NewGenerator(repo, repo, repo, logger)
	bookingService := booking.NewService(repo, logger)
	assignmentManager := booking.NewManager(repo, logger)

	slotsHandler := handlers.NewSlotsHandler(generator, logger)
	appointmentsHandler := handlers.NewAppointmentsHandler(bookingService, assignmentManager, repo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	// Slot search is the hot, unauthenticated-facing path; throttle it per
	// client. Redis makes the counter shared across replicas, the in-process
	// limiter is the fallback when Redis is not deployed.
	var slotLimit httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, config.Int("SLOT_RATE_LIMIT", 60), time.Minute, service)
		slotLimit = limiter.Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		slotLimit = httpx.NewRateLimiter(config.Int("SLOT_RATE_LIMIT", 60), time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /api/v1/slots", httpx.Chain(http.HandlerFunc(slotsHandler.Search), slotLimit))
	mux.HandleFunc("POST /api/v1/appointments", appointmentsHandler.Create)
	mux.HandleFunc("GET /api/v1/appointments", appointmentsHandler.List)
	mux.HandleFunc("GET /api/v1/appointments/{id}", appointmentsHandler.Get)
	mux.HandleFunc("POST /api/v1/appointments/{id}/reschedule", appointmentsHandler.Reschedule)
	mux.HandleFunc("POST /api/v1/appointments/{id}/status", appointmentsHandler.Status)
	mux.HandleFunc("POST /api/v1/appointments/{id}/assign", appointmentsHandler.Assign)
	mux.HandleFunc("POST /api/v1/appointments/{id}/unassign", appointmentsHandler.Unassign)
	mux.HandleFunc("GET /api/v1/appointments/{id}/assignments", appointmentsHandler.Assignments)
	mux.HandleFunc("GET /api/v1/appointments/{id}/history", appointmentsHandler.History)

	apiHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		apiAuth,
	)
	httpHandler := otelhttp.NewHandler(apiHandler, "scheduling")

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

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// apiAuth requires an identity on /api/ routes but leaves the health
// endpoints open for probes.
func apiAuth(next http.Handler) http.Handler {
	authed := auth.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			authed.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
