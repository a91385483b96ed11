package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/adapter/catalog"
	"github.com/Serg19772026/English-Trainer/internal/adapter/i18n"
	"github.com/Serg19772026/English-Trainer/internal/adapter/redis"
	"github.com/Serg19772026/English-Trainer/internal/adapter/synthesizer"
	"github.com/Serg19772026/English-Trainer/internal/adapter/telegram"
	"github.com/Serg19772026/English-Trainer/internal/adapter/transcriber"
	"github.com/Serg19772026/English-Trainer/internal/application"
	"github.com/Serg19772026/English-Trainer/internal/config"
	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/Serg19772026/English-Trainer/internal/observability"
	"github.com/Serg19772026/English-Trainer/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		// the logger may not be configured yet
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	observability.InitLogger(cfg.Log.Level, cfg.Log.Pretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("config", configPath).
		Str("log_level", cfg.Log.Level).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Msg("Configuration loaded")

	// Initialize i18n
	i18nService, err := i18n.NewI18n(cfg.App.LocalesDir)
	if err != nil {
		return err
	}

	// Load the sentence catalog
	topics, err := catalog.Load(cfg.App.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info().Int("topics", len(topics.Topics())).Msg("Catalog loaded")

	// Initialize Redis FSM
	fsm, err := redis.NewFSM(cfg.Redis.URI)
	if err != nil {
		return err
	}
	defer fsm.Close()
	logger.Info().Msg("Redis FSM connected")

	// Initialize transcription client
	stt := transcriber.NewClient(cfg.Transcriber.BaseURL, cfg.Transcriber.APIKey, cfg.Transcriber.Timeout)
	newRecognizer := func(log zerolog.Logger) domain.VoiceRecognizerPort {
		return transcriber.NewVoiceRecognizer(stt, cfg.App.RecognitionLocale, cfg.Timing.VoiceTurn, log)
	}

	// Spoken prompts are optional
	checks := map[string]observability.HealthCheckFunc{
		"redis":       fsm.Ping,
		"transcriber": stt.Ping,
	}
	var tts domain.SynthesizerPort
	if cfg.Synthesizer.BaseURL != "" {
		client := synthesizer.NewClient(synthesizer.Options{
			BaseURL: cfg.Synthesizer.BaseURL,
			APIKey:  cfg.Synthesizer.APIKey,
			Voice:   cfg.Synthesizer.Voice,
			Rate:    cfg.Synthesizer.Rate,
			Timeout: cfg.Synthesizer.Timeout,
		})
		tts = client
		checks["synthesizer"] = client.Ping
		logger.Info().Str("voice", cfg.Synthesizer.Voice).Float64("rate", cfg.Synthesizer.Rate).Msg("Spoken prompts enabled")
	}

	// Initialize application service
	botService := application.NewBotService(topics, fsm, newRecognizer, application.Settings{
		Timings:          sessionTimings(cfg.Timing),
		VisibleSentences: cfg.App.VisibleSentences,
		DefaultLanguage:  domain.Language(cfg.App.DefaultLanguage),
	}, application.WithLogger(observability.WithComponent("service")))
	defer botService.Close()

	// Initialize Telegram bot
	bot, err := telegram.NewBot(cfg.Telegram.Token, botService, i18nService, tts)
	if err != nil {
		return err
	}
	botService.AttachView(bot)
	logger.Info().Msg("Telegram bot initialized")

	// Health, readiness and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:         cfg.Metrics.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start bot in a goroutine
	go func() {
		logger.Info().Msg("Starting bot")
		if err := bot.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal, stopping bot")
	case runErr = <-errChan:
		logger.Error().Err(runErr).Msg("Bot error")
	}

	cancel()
	if err := bot.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop bot")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	logger.Info().Int("sessions", botService.ActiveSessions()).Msg("Bot stopped")
	return runErr
}

func sessionTimings(t config.TimingConfig) session.Timings {
	return session.Timings{
		PlaybackSafety:    t.PlaybackSafety,
		PostPlaybackDelay: t.PostPlaybackDelay,
		RestartDebounce:   t.RestartDebounce,
		IsolatedTurn:      t.IsolatedTurn,
		WrongClear:        t.WrongClear,
		SuccessClear:      t.SuccessClear,
		JustMatchedClear:  t.JustMatchedClear,
	}
}
