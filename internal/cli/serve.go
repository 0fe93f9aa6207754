package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/fusionsync/internal/config"
	"github.com/roach88/fusionsync/internal/reconcile"
	"github.com/roach88/fusionsync/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	EnvFile string

	// Ready, if set, receives the bound address once the server listens
	// (for testing).
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync and report HTTP API",
		Long: `Start an HTTP server accepting design payloads and answering report
queries.

Settings come from FUSIONSYNC_* environment variables, optionally loaded
from a .env file. --addr, --db and --driver override them when given.

Endpoints:
  POST /api/v1/designs/sync
  GET  /api/v1/components/{uuid}/used-in
  GET  /api/v1/components/{uuid}/bom
  GET  /api/v1/stats
  GET  /api/v1/runs
  GET  /health
  GET  /metrics

Example:
  fusionsync serve --addr :8080 --db ./parts.db
  FUSIONSYNC_DRIVER=postgres FUSIONSYNC_DATABASE="host=db dbname=parts" fusionsync serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from FUSIONSYNC_ADDR or :8080)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", "", "env file to load (default .env if present)")

	return cmd
}

// serveConfig merges environment settings with explicitly set flags.
func serveConfig(opts *ServeOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if flagChanged(cmd, "db") {
		cfg.Database = opts.Database
	}
	if flagChanged(cmd, "driver") {
		cfg.Driver = opts.Driver
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := serveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	logger.Info("opening database", "driver", cfg.Driver, "db", cfg.Database)
	st, err := openStore(cfg.Driver, cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	eng := newEngine(st, logger, reconcile.WithMaxGraphNodes(cfg.MaxGraphNodes))
	srv := server.New(eng, st,
		server.WithLogger(logger),
		server.WithMaxPayloadBytes(cfg.MaxPayloadBytes),
		server.WithMaxBOMLines(cfg.MaxBOMLines),
	)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpServer := &http.Server{Handler: srv.Routes()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("server listening", "addr", addr, "driver", cfg.Driver)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "shutdown failed", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
