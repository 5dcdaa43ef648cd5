package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aileks/realm-sync/internal/app"
	"github.com/aileks/realm-sync/internal/auth"
	"github.com/aileks/realm-sync/internal/blob"
	"github.com/aileks/realm-sync/internal/config"
	"github.com/aileks/realm-sync/internal/extract"
	"github.com/aileks/realm-sync/internal/graph"
	"github.com/aileks/realm-sync/internal/store"
)

var (
	cfg        *config.Config
	configPath string
	userFlag   string
	outputJSON bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := newRootCmd()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "realm-sync",
		Short: "realm-sync: canon tracking for worldbuilding projects",
		Long: "realm-sync extracts entities and facts from your manuscripts with Claude, " +
			"resolves them against the project's canon and queues them for review.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.realm-sync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "act as this user id (default cli.user_id)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(
		serveCmd(),
		mcpCmd(),
		migrateCmd(),
		projectCmd(),
		documentCmd(),
		entitiesCmd(),
		factsCmd(),
		cacheCmd(),
		lifecycleCmd(),
	)
	return rootCmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// caller is the identity CLI commands act as.
func caller() auth.Caller {
	if userFlag != "" {
		return auth.User(userFlag)
	}
	return auth.User(cfg.CLI.UserID)
}

func newStore() (store.Store, error) {
	if cfg.Store.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return store.OpenSQLite(cfg.Store.Path)
}

func newBlobs(ctx context.Context) (blob.Store, error) {
	switch cfg.Blob.Driver {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    cfg.Blob.Bucket,
			Prefix:    cfg.Blob.Prefix,
			Region:    cfg.Blob.Region,
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			PathStyle: cfg.Blob.PathStyle,
		})
	case "memory":
		return blob.NewMemoryStore(), nil
	default:
		return nil, nil
	}
}

// newProjector connects the canon graph. An unreachable Neo4j is logged and
// replaced by graph.Nop so the record store keeps working.
func newProjector(ctx context.Context, logger *slog.Logger) (graph.Projector, func()) {
	if !cfg.Neo4j.Enabled {
		return graph.Nop{}, func() {}
	}
	p, err := graph.NewNeo4jProjector(ctx, graph.Neo4jConfig{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	})
	if err != nil {
		logger.Warn("neo4j unavailable; canon graph disabled", "uri", cfg.Neo4j.URI, "error", err)
		return graph.Nop{}, func() {}
	}
	return p, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Close(closeCtx); err != nil {
			logger.Warn("closing neo4j driver", "error", err)
		}
	}
}

func newCompleter(logger *slog.Logger) extract.Completer {
	if cfg.Claude.APIKey == "" {
		return nil
	}
	return extract.NewClaudeCompleter(cfg.Claude.APIKey, cfg.Claude.Model, logger)
}

// openServices builds every service from cfg. The returned cleanup closes the
// store and graph connections.
func openServices(ctx context.Context, logger *slog.Logger) (*app.Services, func(), error) {
	st, err := newStore()
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	blobs, err := newBlobs(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("opening blob storage: %w", err)
	}
	projector, closeGraph := newProjector(ctx, logger)

	svc := app.New(app.Deps{
		Store:     st,
		Blobs:     blobs,
		Projector: projector,
		Completer: newCompleter(logger),
		Logger:    logger,
	}, app.Options{
		PromptVersion:     cfg.Extraction.PromptVersion,
		MaxChunkSize:      cfg.Extraction.MaxChunkSize,
		Concurrency:       cfg.Extraction.Concurrency,
		CacheTTL:          time.Duration(cfg.Extraction.CacheTTLHours) * time.Hour,
		MinResponseTokens: cfg.Extraction.MinResponseTokens,
		MaxResponseTokens: cfg.Extraction.MaxResponseTokens,
	})
	cleanup := func() {
		closeGraph()
		_ = st.Close()
	}
	return svc, cleanup, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
