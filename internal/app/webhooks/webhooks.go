package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/cache"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/config"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/grpc/server"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/metrics"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/migrations"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/services/audit"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/services/entitlement"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/services/health"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/services/webhook"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage/repository"
)

const (
	shutdownTimeout = 15 * time.Second
	amqpRetries     = 5
	amqpRetryDelay  = 2 * time.Second
)

// App — HTTP-сервер вебхуков и gRPC-сервер проверки живости.
type App struct {
	server     *http.Server
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *slog.Logger
	db         *repository.Storage
	cache      *cache.Cache
	amqpConn   *amqp.Connection
}

// New подключается к хранилищу, применяет миграции и собирает серверы.
// Redis и RabbitMQ необязательны: пустой адрес отключает кэш и уведомления.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	db, err := repository.New(cfg.StorageConnectionString, repository.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &App{logger: logger, db: db}

	version, err := migrations.Run(db.DB, cfg.MigrationsPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("migrations applied", slog.Uint64("version", uint64(version)))
	if err = repository.CheckDatabaseReady(ctx, db); err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var entitlementCache entitlement.Cache = entitlement.NoopCache{}
	if cfg.AddressRedis != "" {
		a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entitlementCache = a.cache
	} else {
		logger.Info("redis address not set, entitlement cache disabled")
	}
	entitlements := entitlement.NewService(db, entitlementCache, cfg.CacheTTL, logger)

	opts := []webhook.Option{
		webhook.WithCache(entitlements),
		webhook.WithMetrics(m),
		webhook.WithTimeout(cfg.StorageTimeout),
		webhook.WithSideEffectTimeout(cfg.SideEffectTimeout),
	}
	if cfg.RabbitMQ.URL != "" {
		a.amqpConn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, amqpRetries, amqpRetryDelay)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(a.amqpConn, cfg.Exchange, nil)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, webhook.WithNotifier(rabbitmq.NewPublisher(ch, cfg.Exchange)))
	} else {
		logger.Info("rabbitmq url not set, change notifications disabled")
	}

	if cfg.Webhook.Secret == "" {
		logger.Warn("webhook secret not configured, every delivery will be rejected")
	}

	auditLog := audit.NewLogger(db, logger, cfg.AuditTimeout).WithMetrics(m)
	processor := webhook.NewProcessor(db, auditLog, logger, opts...)
	reporter := health.NewReporter(db, logger, health.DefaultTimeout)

	routes := Routes{
		Logger:       logger,
		Webhook:      cfg.Webhook,
		Processor:    processor,
		Prober:       reporter,
		Entitlements: entitlements,
		AuthMetrics:  m,
		Gatherer:     reg,
	}
	if cfg.JWTSecretKey != "" {
		routes.TokenParser = jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	} else {
		logger.Info("jwt secret not set, operator api disabled")
	}

	router := chi.NewRouter()
	RegisterRoutes(router, routes)

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	a.listener, err = net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, server.NewHealthServer(reporter, logger))

	return a, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает серверы
// и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()
	go func() {
		a.logger.Info("gRPC health service listening on", slog.String("address", a.listener.Addr().String()))
		errCh <- a.grpcServer.Serve(a.listener)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down servers gracefully")
	err := a.server.Shutdown(timeoutCtx)
	a.grpcServer.GracefulStop()
	a.close()
	if runErr != nil {
		return runErr
	}
	return err
}

func (a *App) close() {
	if a.amqpConn != nil {
		if err := a.amqpConn.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis client", sl.Err(err))
		}
	}
	if a.listener != nil && a.grpcServer == nil {
		_ = a.listener.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", sl.Err(err))
	}
}
