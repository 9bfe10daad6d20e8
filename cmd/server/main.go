package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	workers, err := rtc.StartWorkers(ctx, cfg.Media.NumWorkers, rtc.WorkerConfig{
		Engine:       cfg.Media.Engine,
		RTCMinPort:   cfg.Media.RTCMinPort,
		RTCMaxPort:   cfg.Media.RTCMaxPort,
		AnnouncedIPs: cfg.Media.AnnouncedIPs,
		ICEServers:   cfg.Media.ICEServers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media workers")
	}

	// A dead worker takes its routers with it; exit and let the supervisor
	// restart the process.
	pool := app.NewWorkerPool(workers, func(err error) {
		log.Error().Err(err).Dur("delay", cfg.Media.WorkerExitDelay).Msg("media worker died, exiting")
		time.Sleep(cfg.Media.WorkerExitDelay)
		os.Exit(1)
	})
	pool.Watch(ctx)

	reg := app.NewRegistry()
	rooms := app.NewRoomManager(pool, reg, app.RoomOptions{
		Codecs:                          cfg.Media.RouterCodecs(),
		MaxIncomingBitrate:              cfg.Media.MaxIncomingBitrate,
		InitialAvailableOutgoingBitrate: cfg.Media.InitialAvailableOutgoingBitrate,
	})

	o := &orch.Orchestrator{
		Registry:   reg,
		Rooms:      rooms,
		Policy:     app.SimplePolicy{},
		RouterWait: cfg.RouterWait,
	}

	r := router.SetupRouter(ctx, cfg, o, prometheus.DefaultGatherer)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", pool.Size()).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	rooms.CloseAll()
	pool.Close()
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
