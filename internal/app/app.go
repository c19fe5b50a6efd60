package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/newmedica/storefront/internal/health"
	"github.com/newmedica/storefront/internal/idempotency"
	"github.com/newmedica/storefront/internal/metrics"
	"github.com/newmedica/storefront/internal/outbox"
	"github.com/newmedica/storefront/internal/paymentproxy"
	"github.com/newmedica/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает демон витрины: прокси hosted-сессий оплаты, метрики и health,
// gRPC health, воркер outbox и очистку ключей идемпотентности. Останавливается по ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	storage, err := OpenStorage(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	sink, err := OpenEvents(cfg, logger.WithField("layer", "events"))
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.WithError(err).Warn("failed to close event transport")
		}
	}()

	workerMetrics := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer)

	healthHandler := healthcheck.NewHandler(version.Version())
	storage.RegisterHealth(healthHandler)

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(paymentproxy.ServiceName, healthpb.HealthCheckResponse_SERVING)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	proxy := paymentproxy.NewHandler(paymentproxy.NewMockProvider(),
		paymentproxy.WithLogger(logger.WithField("layer", "payment-proxy")),
		paymentproxy.WithMetrics(metrics.Default()),
		paymentproxy.WithDefaultOrigin(cfg.PublicOrigin),
		paymentproxy.WithRateLimit(cfg.SessionRateLimit, cfg.SessionRateBurst),
	)

	var workers sync.WaitGroup
	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	if sink.Enabled() {
		options := []outbox.Option{
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithMetrics(workerMetrics),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		}
		if sink.DLQ != nil {
			options = append(options, outbox.WithDLQPublisher(sink.DLQ))
		}
		worker := outbox.NewWorker(storage.Outbox, sink.Publisher, options...)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workersCtx)
		}()
	}

	cleanup := idempotency.NewCleanupWorker(storage.Idempotency,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithMetrics(workerMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanup.Run(workersCtx)
	}()

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	httpSrv := &http.Server{Handler: proxy.Router(), ReadHeaderTimeout: 10 * time.Second}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("прокси платёжных сессий слушает %s", cfg.HTTPAddr)
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Infof("gRPC health слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(grpcLis)
	}()

	stopGRPC := func() {
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервисы")
		stopGRPC()
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopGRPC()
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-сервер /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
