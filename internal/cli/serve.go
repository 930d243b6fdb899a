package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/casesync/internal/server"
)

// shutdownTimeout bounds how long an in-flight run may delay shutdown.
const shutdownTimeout = 30 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API over HTTP",
		Long: `Start an HTTP server that triggers syncs and undos on request.

Routes:
  POST /sync           {"direction": "a2b"}        full sync
  POST /sync/subset    {"direction", "records"}    sync the given records
  POST /undo                                        undo the last run
  GET  /log                                         messages of the last run
  GET  /runs?limit=N                                journaled runs
  GET  /healthz

Only one sync or undo runs at a time; an overlapping trigger gets 409.

Examples:
  casesync serve
  casesync serve --addr :9000 --log-file /var/log/casesync.log`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address; defaults to server.addr in the config")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	journal, err := a.openJournal(false)
	if err != nil {
		return a.fail(ErrCodeJournal, err)
	}
	ca, cb, err := a.clients()
	if err != nil {
		return a.fail(ErrCodeClient, err)
	}
	eng, err := a.newEngine(ctx, ca, cb, journal)
	if err != nil {
		return a.fail(ErrCodeJournal, err)
	}

	var runs server.RunLister
	if journal != nil {
		runs = journal
	}
	handler := server.NewHandler(eng, runs, a.cfg.DefaultDirection(), a.logger)

	addr := opts.Addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return a.fail(ErrCodeConfig, WrapExitError(ExitCommandError, "failed to listen", err))
	}

	srv := &http.Server{
		Handler:           server.NewRouter(handler, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	a.logger.Info("server started", "addr", ln.Addr().String(), "journal", a.cfg.Database)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server shutdown", err)
	}

	a.logger.Info("server stopped gracefully")
	return nil
}
