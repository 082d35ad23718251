package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/skillswap/skillmatch/internal/config"
	"github.com/skillswap/skillmatch/internal/embed"
	"github.com/skillswap/skillmatch/internal/logger"
	"github.com/skillswap/skillmatch/internal/match"
	"github.com/skillswap/skillmatch/internal/rebuild"
	"github.com/skillswap/skillmatch/internal/snapshot"
	"github.com/skillswap/skillmatch/internal/userstore"
	"github.com/skillswap/skillmatch/internal/version"
	"github.com/skillswap/skillmatch/internal/web"
	"github.com/spf13/cobra"
)

func main() {
	// Local .env files are optional; real deployments set the environment.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "skillmatch",
	Short:   "Vector-based skill matching service",
	Version: version.Full(),
	Long: `skillmatch finds study partners with complementary skills.

It embeds user profiles with a local or hosted embedding model, keeps an
exact inner-product index in memory, and serves nearest-neighbor matches
over HTTP.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skillmatch %s\n", version.Version)
		fmt.Printf("  commit:  %s\n", version.Commit)
		fmt.Printf("  built:   %s\n", version.Date)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter skillmatch.yaml to the current directory.
Edit it and set SKILLMATCH_MONGO_URI (or MONGO_URI) before serving.`,
	RunE: runInit,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the match API server",
	Long: `Start the HTTP match API.

On startup the most recent persisted snapshot is loaded from the snapshot
directory, if one exists. The directory is then watched so that snapshots
committed by 'skillmatch rebuild' are picked up without a restart.`,
	RunE: runServe,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the match index from the user corpus",
	Long: `Re-embed every user profile and commit a fresh index snapshot.

The snapshot is written to the snapshot directory and becomes visible to
running servers through their directory watcher.`,
	RunE: runRebuild,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted snapshot status",
	RunE:  runStatus,
}

func init() {
	rootCmd.SetVersionTemplate("skillmatch version {{.Version}}\n")

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	serveCmd.Flags().String("host", "", "listen host (overrides config)")
	serveCmd.Flags().IntP("port", "p", 0, "listen port (overrides config)")

	statusCmd.Flags().StringP("format", "f", "default", "output format (default, json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig resolves the configuration honoring the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Debug = true
	}
	return cfg, nil
}

// createProvider builds the embedding provider from configuration.
func createProvider(cfg *config.Config) (embed.Provider, error) {
	switch cfg.Embedding.Provider {
	case "ollama", "":
		return embed.NewOllamaProvider(embed.OllamaConfig{
			URL:        cfg.Embedding.OllamaURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	case "openai":
		if cfg.Embedding.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key (set OPENAI_API_KEY)")
		}
		return embed.NewOpenAIProvider(embed.OpenAIConfig{
			APIKey:     cfg.Embedding.OpenAIAPIKey,
			BaseURL:    cfg.Embedding.OpenAIBaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultConfigFile
	if err := config.WriteDefault(path); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set SKILLMATCH_MONGO_URI (or MONGO_URI) and run 'skillmatch rebuild'.")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	log := logger.New(logger.WithDebug(cfg.Log.Debug), logger.WithJSON(cfg.Log.JSON))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	users, err := userstore.NewMongoStore(ctx, userstore.MongoConfig{
		URI:        cfg.Mongo.URI,
		Database:   cfg.Mongo.Database,
		Collection: cfg.Mongo.UsersCollection,
	})
	if err != nil {
		return fmt.Errorf("connect to user store: %w", err)
	}
	defer users.Close(context.Background())

	provider, err := createProvider(cfg)
	if err != nil {
		return err
	}
	if err := provider.Ping(ctx); err != nil {
		// The provider may come up later; matching degrades to 502 until then.
		log.Warn("embedding provider not reachable", "provider", cfg.Embedding.Provider, "error", err)
	}

	if err := os.MkdirAll(cfg.Snapshot.Dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	store := snapshot.NewStore(cfg.Snapshot.Dir)

	holder := snapshot.NewHolder()
	snap, err := store.Load()
	switch {
	case err == nil:
		holder.Publish(snap)
		log.Info("loaded snapshot",
			"version", snap.Version,
			"users", snap.Count(),
			"dimension", snap.Dimension())
	case errors.Is(err, snapshot.ErrNoSnapshot):
		log.Warn("no persisted snapshot; matching unavailable until a rebuild runs")
	default:
		return fmt.Errorf("load snapshot: %w", err)
	}

	if cfg.Snapshot.Watch {
		watcher, err := snapshot.NewWatcher(store, holder, log)
		if err != nil {
			return fmt.Errorf("watch snapshot dir: %w", err)
		}
		go watcher.Start(ctx)
	}

	matcher := match.NewMatcher(holder, provider, users, log)

	server := web.NewServer(web.ServerConfig{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Matcher:   matcher,
		Snapshots: holder,
		Provider:  provider,
		Logger:    log,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	}
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.New(logger.WithDebug(cfg.Log.Debug), logger.WithJSON(cfg.Log.JSON))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	users, err := userstore.NewMongoStore(ctx, userstore.MongoConfig{
		URI:        cfg.Mongo.URI,
		Database:   cfg.Mongo.Database,
		Collection: cfg.Mongo.UsersCollection,
	})
	if err != nil {
		return fmt.Errorf("connect to user store: %w", err)
	}
	defer users.Close(context.Background())

	provider, err := createProvider(cfg)
	if err != nil {
		return err
	}
	if err := provider.Ping(ctx); err != nil {
		return fmt.Errorf("embedding provider not reachable: %w", err)
	}

	store := snapshot.NewStore(cfg.Snapshot.Dir)

	// The offline rebuild has no live holder; running servers pick the
	// committed snapshot up through their directory watcher.
	pipeline := rebuild.New(users, provider, store, nil, log)

	result, err := pipeline.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	if result.Users == 0 {
		fmt.Println("No user profiles found; nothing to index.")
		return nil
	}

	fmt.Printf("Rebuilt index snapshot %s\n", result.Version)
	fmt.Printf("  users:     %d\n", result.Users)
	fmt.Printf("  dimension: %d\n", result.Dimension)
	fmt.Printf("  took:      %s\n", result.Took.Round(time.Millisecond))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store := snapshot.NewStore(cfg.Snapshot.Dir)

	manifest, err := store.Manifest()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		fmt.Println("No snapshot persisted yet. Run 'skillmatch rebuild'.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	}

	fmt.Printf("Snapshot %s\n", manifest.Version)
	fmt.Printf("  model:      %s\n", manifest.Model)
	fmt.Printf("  users:      %d\n", manifest.Count)
	fmt.Printf("  dimension:  %d\n", manifest.Dimension)
	fmt.Printf("  created at: %s\n", manifest.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  directory:  %s\n", cfg.Snapshot.Dir)
	return nil
}
