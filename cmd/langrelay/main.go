// Copyright 2024-2026 Aiku AI

// Command langrelay mirrors messages between language-grouped channels
// of a chat workspace, translating each copy into the destination
// channel's language and delivering it under the original author's
// name.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/catcord/langrelay/pkg/configstore"
	"github.com/catcord/langrelay/pkg/platform/mattermost"
	"github.com/catcord/langrelay/pkg/relay"
	"github.com/catcord/langrelay/pkg/translate"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("langrelay %s (%s, built %s)\n", Tag, Commit, BuildTime)
		return
	}

	// Secrets usually live in a .env file next to the binary.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
}

func setupLogging(cfg *Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	var log zerolog.Logger
	if cfg.Logging.Format == "json" {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMilli})
	}
	return log.With().Timestamp().Logger().Level(level), nil
}

func run(cfg *Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := translate.NewAdapter(log)
	if cfg.Translation.DeepL.Token != "" {
		adapter.Register(translate.ProviderDeepL, translate.NewDeepL(
			cfg.Translation.DeepL.Token,
			cfg.Translation.DeepL.BaseURL,
			cfg.Translation.DeepL.Formality,
			log,
		))
	}
	if cfg.Translation.OpenAI.Token != "" {
		adapter.Register(translate.ProviderOpenAI, translate.NewOpenAI(
			cfg.Translation.OpenAI.Token,
			cfg.Translation.OpenAI.BaseURL,
			cfg.Translation.OpenAI.Model,
			log,
		))
	}
	defaultProvider := cfg.Translation.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = adapter.Default()
	}
	if !adapter.Has(defaultProvider) {
		return fmt.Errorf("default provider %q has no credentials", defaultProvider)
	}

	var store configstore.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		sqlStore, err := configstore.NewSQLiteStore(cfg.Storage.Path, configstore.Provider(defaultProvider), log)
		if err != nil {
			return fmt.Errorf("failed to open config database: %w", err)
		}
		defer func() {
			if err := sqlStore.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close config database")
			}
		}()
		store = sqlStore
	default:
		fileStore, err := configstore.NewFileStore(cfg.Storage.Path, configstore.Provider(defaultProvider), log)
		if err != nil {
			return fmt.Errorf("failed to open config directory: %w", err)
		}
		store = fileStore
	}

	client := mattermost.New(cfg.Mattermost.ServerURL, cfg.Mattermost.Token, cfg.Mattermost.Team, log)
	engine := relay.NewEngine(client, adapter, store, log)
	client.SetHandler(engine)

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Disconnect()

	log.Info().
		Str("server_url", cfg.Mattermost.ServerURL).
		Str("default_provider", defaultProvider).
		Msg("Relay running")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	return nil
}
