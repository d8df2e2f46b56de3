// Command chatroute serves the chat backend: JWT-protected rooms and settings
// over HTTP and streamed generation over websockets.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matiasleandrokruk/chatroute/internal/api"
	"github.com/matiasleandrokruk/chatroute/internal/api/handlers"
	domainauth "github.com/matiasleandrokruk/chatroute/internal/domain/auth"
	"github.com/matiasleandrokruk/chatroute/internal/domain/conversation"
	"github.com/matiasleandrokruk/chatroute/internal/domain/generation"
	"github.com/matiasleandrokruk/chatroute/internal/domain/settings"
	"github.com/matiasleandrokruk/chatroute/internal/infra/config"
	"github.com/matiasleandrokruk/chatroute/internal/infra/eventbus"
	"github.com/matiasleandrokruk/chatroute/internal/infra/llm"
	"github.com/matiasleandrokruk/chatroute/internal/infra/logging"
	"github.com/matiasleandrokruk/chatroute/internal/infra/sqlite"
	"github.com/matiasleandrokruk/chatroute/internal/server"
	"github.com/matiasleandrokruk/chatroute/internal/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	root := newRootCmd(out)
	root.SetArgs(args)
	root.SetErr(errOut)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(errOut, "Error:", err) //nolint:errcheck
		return 1
	}
	return 0
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatroute",
		Short: "Chat backend routing prompts to local or remote language models",
		Long: `chatroute serves chat rooms over a websocket and routes every prompt to a
local model runtime or a remote provider, as configured through the settings API.

Examples:
  chatroute serve
  chatroute migrate
  chatroute version`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.SetOut(out)
	root.AddCommand(newServeCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String()) //nolint:errcheck
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := openDB(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := sqlite.MigrateUp(cmd.Context(), db)
			if err != nil {
				return err
			}
			ver, err := sqlite.MigrationVersion(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), schema version %d\n", len(applied), ver) //nolint:errcheck
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Migrate the database and run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides HTTP_PORT)")
	return cmd
}

// openDB creates the database's parent directory on first run.
func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return sqlite.NewDB(path)
}

// serve runs the server until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if os.Getenv("JWT_SECRET") == "" {
		return errors.New("JWT_SECRET environment variable not set")
	}

	db, err := openDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	applied, err := sqlite.MigrateUp(ctx, db)
	if err != nil {
		db.Close()
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("files", applied))
	}

	authService := domainauth.NewAuthService(db, logger)
	created, err := authService.EnsureUser(ctx, domainauth.AdminUsername, cfg.AdminPassword)
	if err != nil {
		db.Close()
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		logger.Info("seeded admin account", zap.String("username", domainauth.AdminUsername))
	}

	settingsStore := settings.NewStore(db)
	if err := settingsStore.EnsureDefault(ctx); err != nil {
		db.Close()
		return err
	}

	bus := eventbus.New()
	activityDone := conversation.LogActivity(bus, logger)
	rooms := conversation.NewStore(db, bus)

	loader := llm.LocalLoader{OllamaBaseURL: cfg.OllamaBaseURL, EchoDelay: cfg.EchoDelay}
	dispatcher := generation.NewDispatcher(generation.DispatcherOptions{
		Cache:  generation.NewBackendCache(),
		Loader: generation.LoaderWithTimeout(loader.Load, cfg.LocalLoadTimeout),
		Providers: llm.DefaultRegistry(llm.RemoteOptions{
			HuggingFaceBaseURL: cfg.HuggingFaceBaseURL,
			GeminiBaseURL:      cfg.GeminiBaseURL,
			OpenAIBaseURL:      cfg.OpenAIBaseURL,
			AnthropicBaseURL:   cfg.AnthropicBaseURL,
		}),
		History:              rooms,
		Logger:               logger,
		RemoteTimeout:        cfg.RemoteTimeout,
		StrictProviderShapes: cfg.StrictProviderShapes,
	})

	sessions := handlers.NewSessionGroup()
	router := api.NewRouter(api.RouterDeps{
		Auth:         authService,
		Settings:     settingsStore,
		Rooms:        rooms,
		Dispatcher:   dispatcher,
		Coordinator:  generation.NewCoordinator(logger, cfg.GenerationTimeout),
		Logger:       logger,
		LocalRuntime: llm.NewOllamaBackend(cfg.OllamaBaseURL, "", nil),
		Sessions:     sessions,
	})

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srv := server.NewServer(router, db, srvCfg, logger)
	srv.WaitFor(sessions)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		bus.Close()
		<-activityDone
		return err
	})
	return g.Wait()
}
