package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/spf13/cobra"

	"github.com/pointstack/pointstack/internal/api"
	"github.com/pointstack/pointstack/internal/cache"
	"github.com/pointstack/pointstack/internal/config"
	"github.com/pointstack/pointstack/internal/database"
	"github.com/pointstack/pointstack/internal/embed"
	"github.com/pointstack/pointstack/internal/eval"
	"github.com/pointstack/pointstack/internal/followup"
	"github.com/pointstack/pointstack/internal/gateway"
	"github.com/pointstack/pointstack/internal/log"
	"github.com/pointstack/pointstack/internal/retrieval"
)

var serveAddr string

// parseLogLevel reads a slog level name, defaulting to info.
func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the chat pipeline and starts the HTTP server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: parseLogLevel(os.Getenv("POINTSTACK_LOG_LEVEL")), JSON: true})
	logger.Info("starting pointstack", "version", Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, cleanup, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer cleanup()

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := embed.NewGenkitEmbedder(googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), logger)

	cacheGW := cache.New(cache.NewPGQuerier(pool), embedder, logger,
		cache.WithThreshold(float32(cfg.CacheSimilarityThreshold)),
		cache.WithTTL(time.Duration(cfg.CacheTTLHours)*time.Hour),
	)
	retriever := retrieval.New(retrieval.NewPGSources(pool).Bundle(), embedder, logger)
	gw := gateway.New(cfg.GatewayBaseURL, cfg.GatewayAPIKey, nil, logger)
	usage := eval.NewLogger(eval.NewPGQuerier(pool), logger)
	followups := followup.NewGenerator(gw, logger)

	chat := api.NewChatHandler(cacheGW, retriever, gw, usage, followups, logger)
	server := api.NewServer(pool, chat, cfg.CORSOrigins, logger)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	return server.Run(ctx, addr)
}
