package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/earshot-fm/earshot/internal/auth"
	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/feed"
	"github.com/earshot-fm/earshot/internal/ops"
	"github.com/earshot-fm/earshot/internal/publisher"
	"github.com/earshot-fm/earshot/internal/social"
	"github.com/earshot-fm/earshot/internal/spotify"
	"github.com/earshot-fm/earshot/internal/store"
	"github.com/earshot-fm/earshot/internal/sync"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

func main() {
	// Define subcommands
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("earshot %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("earshot - real-time friend listening feed")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  earshot init              Generate example configuration")
		fmt.Println("  earshot --version         Show version information")
		fmt.Println("  earshot --config <path>   Start with configuration file")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting earshot %s\n", version)
	fmt.Printf("  User: %s\n", cfg.Identity.UserID)
	if cfg.Identity.Email != "" {
		fmt.Printf("  Email: %s\n", cfg.Identity.Email)
	}
	fmt.Println()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := ops.NewLogger(&cfg.Logging)

	fmt.Println("Initializing store...")
	st, err := store.New(&cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()
	fmt.Printf("  Store: %s initialized\n", cfg.Store.Driver)

	// Spotify is only needed when publishing the local now-playing track.
	var spotifyClient *spotify.Client
	if cfg.Publish.Enabled {
		fmt.Println("Authenticating with Spotify...")
		authenticator, err := auth.New(&cfg.Spotify)
		if err != nil {
			return fmt.Errorf("failed to create authenticator: %w", err)
		}
		apiClient, err := authenticator.Authenticate(ctx)
		if err != nil {
			return fmt.Errorf("spotify authentication failed: %w", err)
		}
		spotifyClient = spotify.New(apiClient)
		fmt.Println("  Spotify authenticated")
	}

	// The library saver is nil without Spotify; favorites still record
	// locally, they just don't reach the Spotify library.
	var saver social.LibrarySaver
	if spotifyClient != nil {
		saver = spotifyClient
	}
	socialSvc := social.New(st, cfg.Identity, saver, logger)

	fmt.Println("Starting sync engine...")
	engine := sync.NewEngine(st, cfg.Identity, logger)

	var feedServer *feed.Server
	if cfg.Feed.Enabled {
		feedServer = feed.New(&cfg.Feed, engine, socialSvc, logger)
		engine.AddHandler(feedServer.Broadcast)
	}

	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}
	defer engine.Stop()
	fmt.Println("  Sync engine started")

	if feedServer != nil {
		fmt.Printf("Starting feed server on %s:%d...\n", cfg.Feed.Bind, cfg.Feed.Port)
		if err := feedServer.Start(); err != nil {
			return fmt.Errorf("failed to start feed server: %w", err)
		}
		defer feedServer.Stop()
		fmt.Println("  Feed server ready")
	}

	if cfg.Publish.Enabled {
		fmt.Printf("Starting publisher (every %ds)...\n", cfg.Publish.IntervalSeconds)
		pub := publisher.New(spotifyClient, st, cfg.Identity, cfg.Publish, logger)
		go pub.Run(ctx)
		fmt.Println("  Publisher started")
	}

	fmt.Println()
	fmt.Println("✓ All services started successfully!")
	fmt.Println()
	fmt.Println("Press Ctrl+C to shutdown gracefully...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println()
	fmt.Println("Shutting down gracefully...")
	cancel()

	fmt.Println("✓ Shutdown complete")
	return nil
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(string(exampleConfig))
}
