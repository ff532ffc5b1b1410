// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/nextwave/internal/api/connect"
	"github.com/osa030/nextwave/internal/app/autofill"
	"github.com/osa030/nextwave/internal/app/filter"
	"github.com/osa030/nextwave/internal/app/notification"
	"github.com/osa030/nextwave/internal/app/playback"
	"github.com/osa030/nextwave/internal/app/player"
	"github.com/osa030/nextwave/internal/app/queue"
	"github.com/osa030/nextwave/internal/app/resolve"
	"github.com/osa030/nextwave/internal/infra/config"
	"github.com/osa030/nextwave/internal/infra/logger"
	"github.com/osa030/nextwave/internal/infra/remote"
	"github.com/osa030/nextwave/internal/infra/resolver"
)

var (
	app        = kingpin.New("nextwave-server", "nextwave playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	resolverClient, err := resolver.New(resolver.Config{
		BaseURL: cfg.Resolver.BaseURL,
		Timeout: cfg.ResolverTimeout(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create resolver client")
	}

	if cfg.Resolver.WaitSec > 0 {
		if err := waitForResolver(ctx, resolverClient, time.Duration(cfg.Resolver.WaitSec)*time.Second); err != nil {
			return errors.Wrap(err, "resolver is not available")
		}
	}

	notifManager := notification.NewManager()
	notifManager.SetSendTimeout(cfg.SendTimeout())

	q := queue.New()
	mode, ok := queue.ParseRepeatMode(cfg.Playback.RepeatMode)
	if !ok {
		return errors.Newf("invalid repeat mode: %s", cfg.Playback.RepeatMode)
	}
	q.SetRepeatMode(mode)
	q.SetShuffle(cfg.Playback.Shuffle)

	filters, err := filter.NewChainFromSettings(filterSettings(cfg), filter.Deps{Queue: q})
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	session := playback.NewSession(remote.NewSet(notifManager), playback.Config{
		Volume:      cfg.Playback.Volume,
		EventBuffer: cfg.Playback.EventBuffer,
	})

	var filler player.Autofiller
	if cfg.Autofill.Enabled {
		chain, err := autofill.NewProviderChainFromConfig(cfg, resolverClient)
		if err != nil {
			return errors.Wrap(err, "invalid autofill config")
		}
		filler = chain
	}

	playerMgr := player.NewManager(player.Config{
		PreloadThreshold: cfg.PreloadThreshold(),
		SearchLimit:      cfg.Resolver.SearchLimit,
		Startup:          cfg.StartupPlaylist(),
		Autoplay:         cfg.Playback.Autoplay,
		AutofillCount:    cfg.Autofill.CandidateCount,
	}, player.Deps{
		Session:      session,
		Queue:        q,
		Resolver:     resolve.NewGroup(resolverClient),
		Searcher:     resolverClient,
		Filters:      filters,
		Notification: notifManager,
		Autofill:     filler,
	})

	playerService := apiconnect.NewPlayerService(playerMgr, cfg)

	var opts []connect.HandlerOption
	if cfg.Server.Token != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewAuthInterceptor(cfg.Server.Token)))
	} else {
		zlog.Warn().Msg("No player token configured, the API is open to anyone who can reach it")
	}

	mux := http.NewServeMux()
	playerPath, playerHandler := apiconnect.NewPlayerServiceHandler(playerService, opts...)
	mux.Handle(playerPath, playerHandler)

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		if err := playerMgr.Start(ctx); err != nil {
			zlog.Error().Msgf("Failed to start player: %v", err)
		}
	}()

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-playerMgr.Done():
		zlog.Info().Msg("Player stopped, shutting down...")
	case err := <-serverErrCh:
		playerMgr.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the player first to terminate notification streams
	playerMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registry[name](filter.Deps{})
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

func filterSettings(cfg *config.Config) map[string]filter.Settings {
	settings := make(map[string]filter.Settings, len(cfg.Filters))
	for name, f := range cfg.Filters {
		settings[name] = filter.Settings{Enabled: f.Enabled, Settings: f.Settings}
	}
	return settings
}

// waitForResolver polls the resolver health endpoint with exponential
// backoff until it answers or wait has elapsed.
func waitForResolver(ctx context.Context, client *resolver.Client, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	delay := 1 * time.Second
	maxDelay := 16 * time.Second

	for attempt := 1; ; attempt++ {
		err := client.Health(ctx)
		if err == nil {
			zlog.Info().Msgf("Resolver is healthy (attempt %d)", attempt)
			return nil
		}
		zlog.Warn().Msgf("Resolver health check failed (attempt %d): %v", attempt, err)

		select {
		case <-ctx.Done():
			return errors.Wrapf(err, "gave up after %d attempts", attempt)
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
