package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/config"
	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/store"
	"github.com/roach88/casesync/internal/tracker"
)

// app is the per-invocation wiring shared by the commands: config,
// logger, output formatter and, on demand, the journal and clients.
type app struct {
	opts    *RootOptions
	cfg     *config.Config
	logger  *slog.Logger
	out     *OutputFormatter
	journal *store.Store
	closers []io.Closer
}

func newApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, logCloser := newLogger(opts, cmd.ErrOrStderr())
	logger.Debug("config loaded", "file", cfg.File, "database", cfg.Database)

	return &app{
		opts:   opts,
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		closers: []io.Closer{logCloser},
	}, nil
}

// Close releases the journal and the log file, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("error closing resource", "error", err)
		}
	}
}

// openJournal opens the sqlite run journal. required makes a disabled
// journal (empty database path) a command error.
func (a *app) openJournal(required bool) (*store.Store, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	if a.cfg.Database == "" {
		if required {
			return nil, NewExitError(ExitCommandError, "no run journal configured (set database in the config)")
		}
		return nil, nil
	}

	a.logger.Debug("opening journal", "path", a.cfg.Database)
	st, err := store.Open(a.cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	a.journal = st
	a.closers = append(a.closers, st)
	return st, nil
}

// clients builds the tracker clients.
func (a *app) clients() (tracker.Client, tracker.Client, error) {
	factory := a.opts.Clients
	if factory == nil {
		factory = configClients
	}
	ca, cb, err := factory(a.cfg, a.logger)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to build tracker clients", err)
	}
	return ca, cb, nil
}

func configClients(cfg *config.Config, logger *slog.Logger) (tracker.Client, tracker.Client, error) {
	ns, err := cfg.NetSuiteClient(logger.With("system", tracker.SystemA))
	if err != nil {
		return nil, nil, err
	}
	ado, err := cfg.AzureClient(logger.With("system", tracker.SystemB))
	if err != nil {
		return nil, nil, err
	}
	return ns, ado, nil
}

// newEngine builds an engine over the given clients. With a journal the
// latest run is restored so that log and undo see it.
func (a *app) newEngine(ctx context.Context, ca, cb tracker.Client, journal *store.Store) (*engine.Engine, error) {
	mapping, err := a.cfg.Mapping()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid status mapping", err)
	}

	opts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithFetchTolerance(a.cfg.TolerateFetchErrors),
		engine.WithSystemNames(a.cfg.Names.A, a.cfg.Names.B),
	}
	if a.opts.RunIDs != nil {
		opts = append(opts, engine.WithRunIDGenerator(a.opts.RunIDs))
	}
	if journal != nil {
		opts = append(opts, engine.WithJournal(journal))
	}

	eng := engine.New(ca, cb, mapping, opts...)
	if err := eng.Restore(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to restore last run", err)
	}
	return eng, nil
}

// fail reports a command error through the formatter, so JSON callers
// get an error envelope, and returns it for the exit code.
func (a *app) fail(code string, err error) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitCommandError, "command failed", err)
	}
	if a.opts.Format == "json" {
		_ = a.out.Error(code, exitErr.Error(), nil)
		exitErr.Rendered = true
	}
	return exitErr
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func directionFlag(flag string, cfg *config.Config) (tracker.Direction, error) {
	if flag == "" {
		return cfg.DefaultDirection(), nil
	}
	dir, err := tracker.ParseDirection(flag)
	if err != nil {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("--direction: %v", err))
	}
	return dir, nil
}
