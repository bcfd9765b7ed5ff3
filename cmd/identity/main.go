package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tixgo/platform/internal/broker"
	"github.com/tixgo/platform/internal/config"
	"github.com/tixgo/platform/internal/identity"
	"github.com/tixgo/platform/internal/logging"
	"github.com/tixgo/platform/internal/metrics"
	"github.com/tixgo/platform/internal/observability"
	"github.com/tixgo/platform/internal/storage/postgres"
	transport "github.com/tixgo/platform/internal/transport/http"
	"github.com/tixgo/platform/migrations"
)

func main() {
	var cfg config.IdentityConfig
	config.LoadConfig(&cfg)

	flush := logging.Init("service-identity")
	defer flush()
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracerProvider(ctx, cfg.OtelExporterEndpoint, cfg.OtelServiceName)
	if err != nil {
		logging.Fatal(ctx, "init tracer", err)
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal(ctx, "connect to database", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		logging.Fatal(ctx, "apply migrations", err)
	}

	client := broker.NewClient(broker.Config{
		URL:              cfg.RabbitMQURL,
		Prefetch:         cfg.BrokerPrefetch,
		ReconnectBackoff: cfg.BrokerBackoff,
	})

	issuer := identity.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	svc := identity.NewService(postgres.NewUserRepository(pool), client, issuer)

	if err := identity.NewConsumer().Register(client); err != nil {
		logging.Fatal(ctx, "register consumers", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", transport.HandleHealth(pool))
	mux.HandleFunc("POST /register", transport.HandleRegister(svc))
	mux.HandleFunc("POST /login", transport.HandleLogin(svc))

	server := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}

	go func() {
		if err := metrics.Serve(cfg.MetricsPort); err != nil {
			logging.Error(ctx, "metrics listener stopped", err)
		}
	}()
	go func() {
		logging.Info(ctx, "identity service listening", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal(ctx, "http server", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Info(ctx, "shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(drainCtx); err != nil {
		logging.Error(ctx, "http shutdown", err)
	}
	if err := client.Shutdown(drainCtx); err != nil {
		logging.Error(ctx, "broker shutdown", err)
	}
}
