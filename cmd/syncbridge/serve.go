package main

import (
	"database/sql"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/syncbridge/internal/config"
	"github.com/jackzampolin/syncbridge/internal/ebook"
	"github.com/jackzampolin/syncbridge/internal/fuzzy"
	"github.com/jackzampolin/syncbridge/internal/home"
	"github.com/jackzampolin/syncbridge/internal/jobctl"
	"github.com/jackzampolin/syncbridge/internal/ratelimit"
	"github.com/jackzampolin/syncbridge/internal/recon"
	"github.com/jackzampolin/syncbridge/internal/scheduler"
	"github.com/jackzampolin/syncbridge/internal/sources"
	"github.com/jackzampolin/syncbridge/internal/store"
	"github.com/jackzampolin/syncbridge/internal/transcriber"
	"github.com/jackzampolin/syncbridge/internal/transcript"
)

var (
	whisperModelPath string
	whisperLanguage  string
	openaiAPIKey     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the syncbridge reconciliation daemon",
	Long: `Start the syncbridge daemon.

This runs both loops that drive reconciliation: a reconcile cycle on the
configured period, and a fixed one-minute check that advances any mapping
still moving through transcription and ebook priming.

Examples:
  syncbridge serve
  syncbridge serve --whisper-model /models/ggml-base.en.bin
  syncbridge serve --openai-api-key sk-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: GetLogLevel(),
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		configFile := cfgFile
		if configFile == "" {
			if _, err := os.Stat("config.yaml"); err == nil {
				configFile = "config.yaml"
			} else {
				configFile = h.ConfigPath()
			}
		}
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			logger.Info("creating default config", "path", configFile)
			if err := config.WriteDefault(configFile); err != nil {
				logger.Warn("failed to write default config", "error", err)
			}
		}
		cfgMgr, err := config.NewManager(configFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()
		cfg := cfgMgr.Get()

		limiter := ratelimit.New(0)
		ab := sources.NewHTTPABAdapter(cfg.AB.BaseURL, cfg.AB.Token, nil, limiter)
		es := sources.NewHTTPESAdapter(cfg.ES.BaseURL, cfg.ES.Token, nil, limiter)

		raDB, err := sql.Open("sqlite3", cfg.RA.DBPath)
		if err != nil {
			return err
		}
		ra := sources.NewSQLRAAdapter(raDB, cfg.RA.UserID)

		progressStore, err := store.Open(h.MappingsPath(), h.StatesPath())
		if err != nil {
			return err
		}
		transcripts := transcript.NewRegistry(h.TranscriptPath)
		ebooks := ebook.NewRegistry(h.EbookCachePath)
		matcher := fuzzy.New(fuzzy.DefaultThreshold)

		engine := recon.New(recon.Bundle{
			AB:          ab,
			ES:          es,
			RA:          ra,
			Transcripts: transcripts,
			Ebooks:      ebooks,
			Store:       progressStore,
			Matcher:     matcher,
			Thresholds:  cfg.Sync,
			Logger:      logger,
		})

		engineChoice, err := buildTranscriber()
		if err != nil {
			return err
		}

		jobs := &jobctl.Controller{
			Store:       progressStore,
			Audio:       ab,
			Transcriber: engineChoice,
			Transcripts: transcripts,
			Ebooks:      ebooks,
			Logger:      logger,
		}

		periodChanges := make(chan time.Duration, 1)
		cfgMgr.OnChange(func(next *config.Config) {
			select {
			case periodChanges <- time.Duration(next.Sync.PeriodMins) * time.Minute:
			default:
			}
		})

		sched := &scheduler.Scheduler{
			Engine:            engine,
			Jobs:              jobs,
			Logger:            logger,
			ReconcileInterval: time.Duration(cfg.Sync.PeriodMins) * time.Minute,
			PeriodChanges:     periodChanges,
		}

		logger.Info("syncbridge starting", "home", h.Path(), "config", configFile)
		sched.Run(ctx)
		jobs.Wait()
		return nil
	},
}

// buildTranscriber picks the configured transcription engine: a local
// whisper.cpp model if --whisper-model is set, otherwise OpenAI's cloud
// endpoint with the key from --openai-api-key or the OPENAI_API_KEY env var
// (the engine is built even when no key is set).
func buildTranscriber() (jobctl.Transcriber, error) {
	if whisperModelPath != "" {
		return transcriber.NewWhisperEngine(whisperModelPath, whisperLanguage)
	}
	key := openaiAPIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	return transcriber.NewOpenAIEngine(transcriber.OpenAIEngineConfig{APIKey: key}), nil
}

func init() {
	serveCmd.Flags().StringVar(&whisperModelPath, "whisper-model", "", "path to a ggml whisper.cpp model (enables local transcription)")
	serveCmd.Flags().StringVar(&whisperLanguage, "whisper-language", "", "language hint passed to whisper.cpp (empty auto-detects)")
	serveCmd.Flags().StringVar(&openaiAPIKey, "openai-api-key", "", "OpenAI API key (default: OPENAI_API_KEY env var); used when --whisper-model is not set")

	rootCmd.AddCommand(serveCmd)
}
