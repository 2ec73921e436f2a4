package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahinestrog/storefront/internal/catalog"
	"github.com/ahinestrog/storefront/internal/checkout"
	"github.com/ahinestrog/storefront/internal/config"
	"github.com/ahinestrog/storefront/internal/events"
	"github.com/ahinestrog/storefront/internal/history"
	"github.com/ahinestrog/storefront/internal/logging"
	"github.com/ahinestrog/storefront/internal/metrics"
	"github.com/ahinestrog/storefront/internal/restapi"
	"github.com/ahinestrog/storefront/internal/server"
	"github.com/ahinestrog/storefront/internal/session"
)

func main() {
	cfg := config.LoadConfig()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	cfg.Log("storefront")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Data store
	api := restapi.New(cfg.DatastoreURL, cfg.HTTPTimeout,
		restapi.WithRateLimit(cfg.DatastoreRPS),
		restapi.WithLogger(logging.Component("restapi")),
	)

	// Sessions
	sdb, err := session.OpenSQLite(ctx, cfg.SessionDBPath)
	must(err)
	defer sdb.Close()
	sessions := session.NewManager(session.NewSQLiteStore(sdb), logging.Component("session"),
		session.WithCapacity(cfg.SessionCacheSize))

	// Rabbit
	rabbit, err := events.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange, logging.Component("rabbit"))
	must(err)
	defer rabbit.Close()

	cat := catalog.NewService(api, cfg.CatalogCacheSize, cfg.CatalogCacheTTL, logging.Component("catalog"))
	if rabbit.Enabled() {
		err := rabbit.ConsumeTopic(ctx, "storefront.catalog", []string{events.RKBookUpdated},
			func(rk string, env events.Envelope) error {
				var p events.BookUpdated
				if err := json.Unmarshal(env.Payload, &p); err != nil {
					return err
				}
				cat.Invalidate(p.BookID)
				return nil
			})
		must(err)
		log.Info().Msg("rabbit consumers started")
	}

	// Metrics
	reg := metrics.NewRegistry()
	coord := checkout.NewCoordinator(api, api, api,
		checkout.WithPublisher(rabbit),
		checkout.WithRecorder(metrics.NewCheckoutMetrics(reg)),
		checkout.WithLogger(logging.Component("checkout")),
	)

	srv := server.New(server.Deps{
		Catalog:  cat,
		Sessions: sessions,
		Checkout: coord,
		History:  history.NewService(api),
		Registry: reg,
		Metrics:  metrics.NewServerMetrics(reg, "storefront"),
		Log:      logging.Component("http"),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err)
	grpcSrv, health := server.NewOpsServer()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
		}
	}()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warn().Msg("shutting down...")
		health.Shutdown()
		shutdownCtx, stop := context.WithTimeout(context.Background(), config.ShutdownGrace)
		defer stop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		grpcSrv.GracefulStop()
		cancel()
	}()

	log.Info().Str("http", cfg.HTTPAddr).Str("grpc", cfg.GRPCAddr).Msg("storefront listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http serve")
	}
	<-ctx.Done()
	log.Info().Msg("storefront stopped")
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
