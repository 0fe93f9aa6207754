package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/fusionsync/internal/config"
	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/reconcile"
	"github.com/roach88/fusionsync/internal/store"
	"github.com/roach88/fusionsync/internal/store/gormstore"
	"github.com/roach88/fusionsync/internal/store/memstore"
)

// openStore opens the store named by driver. dsn is a file path for the
// SQLite drivers and a connection string for postgres.
func openStore(driver, dsn string) (domain.Store, error) {
	switch driver {
	case config.DriverSQLite:
		return store.Open(dsn)
	case config.DriverGormSQLite:
		return gormstore.Open(gormstore.DriverSQLite, dsn)
	case config.DriverPostgres:
		return gormstore.Open(gormstore.DriverPostgres, dsn)
	case config.DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// newLogger returns a text logger on w, at debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(opts *RootOptions, f *OutputFormatter, logger *slog.Logger, fn func(st domain.Store) error) error {
	logger.Debug("opening database", "driver", opts.Driver, "db", opts.Database)
	st, err := openStore(opts.Driver, opts.Database)
	if err != nil {
		_ = f.Error(ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(st)
}

func newEngine(st domain.Store, logger *slog.Logger, opts ...reconcile.Option) *reconcile.Engine {
	return reconcile.New(st, append([]reconcile.Option{reconcile.WithLogger(logger)}, opts...)...)
}
