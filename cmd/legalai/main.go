package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/SLZMWLMJY/Legal-ai/internal/agent"
	"github.com/SLZMWLMJY/Legal-ai/internal/config"
	"github.com/SLZMWLMJY/Legal-ai/internal/conversation"
	"github.com/SLZMWLMJY/Legal-ai/internal/kvstore"
	"github.com/SLZMWLMJY/Legal-ai/internal/llm"
	"github.com/SLZMWLMJY/Legal-ai/internal/logger"
	"github.com/SLZMWLMJY/Legal-ai/internal/server"
	"github.com/SLZMWLMJY/Legal-ai/internal/tools"
)

var (
	version = "0.1.0"
)

// sweepInterval controls periodic expired-key cleanup in the store.
const sweepInterval = time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:   "legalai",
		Short: "LegalAI - conversational legal assistant backend",
		Long: `LegalAI is a streaming conversational backend for legal consultation.

It serves:
  • POST /api/chat/stream - streaming legal Q&A over SSE
  • POST /api/chat/image_analysis - chat with an attached image (contracts, notices, evidence)

Conversations keep per-account history, rolling summaries and a usage profile
in a local key-value store (SQLite or Bolt).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return run(cfg)
		},
	}

	// config subcommand
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fmt.Println(cfg.String())

			path, _ := config.ConfigPath()
			fmt.Printf("\nConfig file path: %s\n", path)
			return nil
		},
	}

	// version subcommand
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("LegalAI v%s\n", version)
		},
	}

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the subsystems together and serves until interrupted.
func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logger.Init(logger.Config{
		LogDir:     config.LogDir(),
		Level:      logger.ParseLevel(cfg.Log.Level),
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: cfg.Log.ConsoleOut,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	kv, err := kvstore.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer kv.Close()

	chatClient := llm.New(
		cfg.Model.APIKey,
		cfg.Model.BaseURL,
		cfg.Model.Model,
		cfg.Model.Temperature,
		cfg.Model.MaxTokens,
		cfg.Model.Timeout(),
	)
	visionClient := llm.New(
		cfg.Vision.APIKey,
		cfg.Vision.BaseURL,
		cfg.Vision.Model,
		cfg.Vision.Temperature,
		cfg.Vision.MaxTokens,
		cfg.Model.Timeout(),
	)

	fs := afero.NewOsFs()
	registry := tools.NewDefaultRegistry(cfg, visionClient, fs)

	store := conversation.NewStore(kv, cfg.Context)
	summaries := conversation.NewSummaryEngine(kv, store, chatClient, cfg.Context)
	profiles := conversation.NewProfileEngine(kv, store, chatClient, cfg.Context)
	assembler := conversation.NewAssembler(store, summaries, profiles)

	orch := agent.New(chatClient, registry, store, summaries, profiles, assembler, cfg.Context)
	srv := server.New(orch, cfg.Server, fs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, kv)

	logger.Info("LegalAI v%s starting: model=%s store=%s", version, cfg.Model.Model, cfg.Store.Backend)
	return srv.Run(ctx)
}

// sweepLoop periodically removes expired keys from the store.
func sweepLoop(ctx context.Context, kv kvstore.Store) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := kv.Sweep()
			if err != nil {
				logger.Warn("store sweep failed: %v", err)
			} else if n > 0 {
				logger.Debug("store sweep removed %d expired keys", n)
			}
		}
	}
}
