package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"metricd/internal/broker"
	"metricd/internal/config"
	"metricd/internal/httpapi"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := "127.0.0.1:8787"
	if v := os.Getenv("METRICD_ADDR"); v != "" {
		defaultAddr = v
	}
	defaultLevel := "info"
	if v := os.Getenv("METRICD_LOG_LEVEL"); v != "" {
		defaultLevel = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. 127.0.0.1:8787")
	configPath := flag.String("config", "", "Optional config file (.yaml/.json/.toml)")
	logLevel := flag.String("log-level", defaultLevel, "Log level: debug|info|warn|error")
	capacity := flag.Int("cache-capacity", 0, "Per-experiment event cache size (0=default 1000)")
	noExit := flag.Bool("no-exit", false, "Disable idle shutdown after the producer finishes")
	flag.Parse()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			errLog := zerolog.New(os.Stderr)
			errLog.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg = loaded
	}
	// flags win over the config file
	if cfg.Addr == "" || *addr != defaultAddr {
		cfg.Addr = *addr
	}
	if *capacity > 0 {
		cfg.CacheCapacity = *capacity
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = *logLevel
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	b := broker.NewWithConfig(broker.Config{
		Capacity:    cfg.CacheCapacity,
		FinishGrace: secondsOrZero(cfg.FinishGraceSeconds),
		DetachGrace: secondsOrZero(cfg.DetachGraceSeconds),
		Logger:      log,
	})

	httpapi.SetLogger(log)
	if len(cfg.AllowedOrigins) > 0 {
		httpapi.SetAllowedOrigins(cfg.AllowedOrigins)
	}
	mux := httpapi.NewMux(b)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("metricd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Stop on Ctrl+C / SIGTERM, or when the broker decides the run is over
	// and every viewer has left.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-idleShutdown(b, *noExit):
		log.Info().Msg("run finished and no viewers connected, shutting down")
	}
	b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
}

func idleShutdown(b *broker.Broker, disabled bool) <-chan struct{} {
	if disabled {
		return nil
	}
	return b.ShutdownRequests()
}

func secondsOrZero(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
