package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/vetdesk/vetdesk/libs/config"
	"github.com/vetdesk/vetdesk/libs/db"
	"github.com/vetdesk/vetdesk/libs/httpx"
	"github.com/vetdesk/vetdesk/libs/kafkax"
	otelx "github.com/vetdesk/vetdesk/libs/otel"
	"github.com/vetdesk/vetdesk/libs/runtime"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/booking"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/consumer"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/directory"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/handlers"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/inbox"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/outbox"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/reminder"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8083")
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

	repo := storage.NewAppointmentRepository(pool)
	apiKeys := storage.NewAPIKeyRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	pgDirectory := directory.NewPG(pool)

	// Provider and patient lookups go through the local cache by default. A
	// directory gRPC address switches lookups to the live directory service.
	var dir directory.Directory = pgDirectory
	if addr := strings.TrimSpace(config.String("DIRECTORY_GRPC_ADDR", "")); addr != "" {
		grpcDir, err := directory.NewGRPC(addr)
		if err != nil {
			logger.Error("directory grpc init failed; using local cache", "err", err)
		} else if grpcDir != nil {
			dir = grpcDir
		}
	}

	offsets := reminder.ParseOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,120"), logger)
	reminders := reminder.NewScheduler(outboxRepo, logger, offsets)

	cutoff := booking.DefaultCancellationCutoff
	if v, err := strconv.Atoi(config.String("CANCELLATION_CUTOFF_MINUTES", "120")); err == nil && v > 0 {
		cutoff = time.Duration(v) * time.Minute
	}
	svc := booking.NewService(repo, dir, outboxRepo, reminders, logger, cutoff)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	if topic := strings.TrimSpace(config.String("KAFKA_CONSUME_TOPIC", "directory.provider.updated.v1")); topic != "" {
		consumerCfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "scheduling-service"),
			Topic:   topic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				ProviderID      string `json:"provider_id"`
				Active          bool   `json:"active"`
				Verified        bool   `json:"verified"`
				ConsultationFee string `json:"consultation_fee"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.ProviderID == "" {
				logger.Error("missing provider_id in event", "topic", msg.Topic)
				return nil
			}

			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(ctx) }()

			if err := pgDirectory.UpsertProvider(ctx, tx, directory.Provider{
				ID:              payload.ProviderID,
				Active:          payload.Active,
				Verified:        payload.Verified,
				ConsultationFee: payload.ConsultationFee,
			}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		})
		go eventConsumer.Run(ctx)
	}

	handler := handlers.NewSchedulingHandler(svc, apiKeys, logger, config.String("JWT_SECRET", "dev-secret"))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/slots", handler.Slots)
	mux.HandleFunc("/api/v1/appointments", handler.Book)
	mux.HandleFunc("/api/v1/appointments/get", handler.Get)
	mux.HandleFunc("/api/v1/appointments/list", handler.List)
	mux.HandleFunc("/api/v1/appointments/update", handler.Update)
	mux.HandleFunc("/api/v1/appointments/cancel", handler.Cancel)
	mux.HandleFunc("/api/v1/appointments/confirm", handler.Confirm)
	mux.HandleFunc("/api/v1/appointments/complete", handler.Complete)
	mux.HandleFunc("/api/v1/appointments/no-show", handler.NoShow)

	bodyLimit := int64(1 << 20)
	if v, err := strconv.Atoi(config.String("REQUEST_BODY_LIMIT_BYTES", "1048576")); err == nil && v > 0 {
		bodyLimit = int64(v)
	}
	limitPerMinute := 120
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "120")); err == nil && v > 0 {
		limitPerMinute = v
	}

	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key")),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
