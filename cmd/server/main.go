package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	router "github.com/peppoasap/InVeritas/internal/adapters/http"
	"github.com/peppoasap/InVeritas/internal/analyze"
	"github.com/peppoasap/InVeritas/internal/app"
	"github.com/peppoasap/InVeritas/internal/app/orch"
	"github.com/peppoasap/InVeritas/internal/config"
	"github.com/peppoasap/InVeritas/internal/sfu"
	"github.com/peppoasap/InVeritas/internal/transcode"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	delimiter, err := analyze.DelimiterByName(cfg.Analysis.Delimiter)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	fs := afero.NewOsFs()
	reg := app.NewRegistry()
	engine := sfu.NewEngine(cfg.SFU)
	recorder := orch.NewRecorder(cfg.Recording, fs)
	launcher := &analyze.Launcher{
		Workers:     cfg.Analysis.Workers,
		Analyzers:   analyze.CommandAnalyzerFactory(cfg.Analysis.WorkerCommand),
		Transcoders: transcode.Factory(cfg.Transcoder),
		Delimiters:  delimiter,
		FS:          fs,
	}

	o := orch.New(reg, engine, recorder, launcher)

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("InVeritas server started")
		var err error
		if cfg.Server.UseHTTPS {
			err = srv.ListenAndServeTLS(cfg.Server.SSLCert, cfg.Server.SSLKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
