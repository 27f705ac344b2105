package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"perfectpixel/internal/adapters/codec"
	"perfectpixel/internal/adapters/handler"
	"perfectpixel/internal/adapters/renderer"
	"perfectpixel/internal/adapters/rescaler"
	"perfectpixel/internal/adapters/store"
	"perfectpixel/internal/core/domain"
	"perfectpixel/internal/core/service"
)

func main() {
	log.Info().Msg("starting perfectpixel...")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	viper.SetDefault("server.address", ":5000")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("upload.max_bytes", domain.MaxUploadBytes)
	viper.SetDefault("upload.preview_size", domain.PreviewDimension)
	viper.SetDefault("upload.max_pixels", domain.MaxPixels)
	viper.SetDefault("storage.dir", "uploads")
	viper.SetDefault("storage.retention", "24h")
	viper.SetDefault("storage.sweep_interval", "1h")
	viper.SetDefault("processing.workers", runtime.NumCPU())
	viper.SetDefault("processing.diagnostic_size", 512)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	viper.SetEnvPrefix("perfectpixel")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	log.Info().Msg("reading config file...")
	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		log.Info().Msg("no config file found, using defaults")
	case err != nil:
		log.Fatal().Err(err).Msg("could not read config file")
	}

	if viper.GetString("log.format") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	var logLevel zerolog.Level

	switch viper.GetString("log.level") {
	case "info":
		logLevel = zerolog.InfoLevel
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bridge := codec.NewBridge()

	fileStore, err := store.NewFileStore(viper.GetString("storage.dir"), bridge)
	if err != nil {
		log.Panic().Err(err).Msg("failed initializing artifact store")
	}

	processor := service.NewProcessor(bridge, fileStore, rescaler.NewPerfectPixel(),
		renderer.NewGridRenderer(viper.GetInt("processing.diagnostic_size")))

	languages, err := service.NewLanguages()
	if err != nil {
		log.Panic().Err(err).Msg("failed loading translations")
	}

	httpHandler, err := handler.NewHTTP(processor, languages)
	if err != nil {
		log.Panic().Err(err).Msg("failed initializing http handler")
	}

	go service.NewJanitor(fileStore).Run(ctx)

	srv := &http.Server{
		Addr:              viper.GetString("server.address"),
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()

		shutdownCtx, done := context.WithTimeout(context.Background(), viper.GetDuration("server.shutdown_timeout"))
		defer done()

		log.Info().Msg("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shut down cleanly")
		}
	}()

	log.Info().Str("address", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}

	<-stopped
	log.Info().Msg("server stopped")
}
