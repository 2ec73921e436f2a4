package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahinestrog/storefront/internal/config"
	"github.com/ahinestrog/storefront/internal/datastore"
	"github.com/ahinestrog/storefront/internal/events"
	"github.com/ahinestrog/storefront/internal/logging"
	"github.com/ahinestrog/storefront/internal/metrics"
)

func main() {
	cfg := config.LoadConfig()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	cfg.Log("datastore")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repo
	db, err := datastore.Open(ctx, cfg.StoreDriver, cfg.StoreDBPath)
	must(err)
	defer db.Close()
	repo := datastore.NewRepository(db)

	if cfg.StoreSeed {
		seeded, err := repo.Seed(ctx)
		must(err)
		if seeded {
			log.Info().Msg("seeded demo catalog")
		}
	}

	// Rabbit
	rabbit, err := events.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange, logging.Component("rabbit"))
	must(err)
	defer rabbit.Close()

	reg := metrics.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, "datastore")

	h := datastore.NewHandler(repo, rabbit, logging.Component("http"))
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/", h.Routes(cfg.CORSOrigins, srvMetrics.Observe))

	httpSrv := &http.Server{
		Addr:              cfg.StoreHTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warn().Msg("shutting down...")
		shutdownCtx, stop := context.WithTimeout(context.Background(), config.ShutdownGrace)
		defer stop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		cancel()
	}()

	log.Info().Str("addr", cfg.StoreHTTPAddr).Str("driver", cfg.StoreDriver).Msg("datastore listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http serve")
	}
	<-ctx.Done()
	log.Info().Msg("datastore stopped")
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
