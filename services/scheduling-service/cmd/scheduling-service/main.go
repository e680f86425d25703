package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/libs/runtime"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/grpcserver"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
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

	m := metrics.New()
	var checks []runtime.ReadyCheck

	st, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		panic(err)
	}
	defer st.close()
	checks = append(checks, st.checks...)

	var (
		availCache booking.Cache
		rdb        *redis.Client
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		availCache = cache.NewRedis(rdb, config.Duration("AVAILABILITY_CACHE_TTL", 5*time.Minute), service+":avail")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	var sink outbox.Sink
	if len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		sink = writer
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	publisher := outbox.NewPublisher(st.source, sink, logger, m, outbox.PublisherConfig{
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid CLINIC_TIMEZONE, using UTC", "err", err)
		loc = time.UTC
	}
	svc := booking.NewService(st.store, availCache, logger, m, booking.Config{
		Policy: booking.Policy{
			MinAdvanceDays: config.Int("BOOKING_MIN_ADVANCE_DAYS", 0),
			MaxAdvanceDays: config.Int("BOOKING_MAX_ADVANCE_DAYS", 0),
		},
		Location: loc,
	})

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if url := config.String("JWKS_URL", ""); url != "" {
		verifier.JWKS = auth.NewJWKSClient(url, time.Duration(config.Int("JWKS_CACHE_SECONDS", 300))*time.Second)
	}
	if !verifier.Enabled() {
		logger.Warn("JWT verification disabled; write endpoints are open")
	}

	logger.Info("readiness checks configured", "checks", runtime.CheckNames(checks))
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", m.Handler())
	handlers.New(svc, logger, verifier).Register(mux)

	var limiter httpx.Middleware
	if perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 0); perMinute > 0 {
		if rdb != nil {
			limiter = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, service+":rl").Middleware(logger, true)
		} else {
			limiter = httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
		}
	}

	httpHandler := httpx.Chain(m.Instrument(mux),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", "")}),
		limiter,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15))*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpcx.ServerOptions()...)
	grpcserver.Register(grpcServer, svc)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
		logger.Info("grpc server stopped")
	}()

	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}
