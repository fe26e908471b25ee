// Command shared-state is the peer-to-peer eventually-consistent
// key-value replication daemon and its one-shot CLI operations
// (spec.md §6).
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shared-state/internal/cli"
	"shared-state/internal/metrics"
	"shared-state/internal/orchestrator"
	"shared-state/internal/reactor"
	"shared-state/internal/store"
	"shared-state/pkg/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logrus.StandardLogger()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.WithError(err).Error("shared-state: load configuration failed")
		return 1
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	// SIGPIPE is ignored; write failures are surfaced as EPIPE from the
	// syscall itself (spec.md §6).
	signal.Ignore(syscall.SIGPIPE)

	r, err := reactor.New(log)
	if err != nil {
		log.WithError(err).Error("shared-state: create reactor failed")
		return 1
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	st := store.New(cfg.ConfigDir, log)
	if err := st.Load(); err != nil {
		log.WithError(err).Error("shared-state: load state config failed")
		return 1
	}

	app := &cli.App{
		Store:   st,
		Reactor: r,
		Cfg:     cfg,
		Log:     log,
		RunDaemon: func(cmd *cobra.Command) error {
			return runDaemon(cmd.Context(), r, st, log, cfg)
		},
	}

	root := cli.NewRootCommand(app)
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(sigCtx); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			log.Error(exitErr.Error())
			return exitErr.Code
		}
		log.Error(err.Error())
		return 1
	}
	return 0
}

// runDaemon starts the peer orchestrator's three loops and the
// Prometheus metrics endpoint, blocking until ctx is cancelled.
func runDaemon(ctx context.Context, r *reactor.Reactor, st *store.Store, log *logrus.Logger, cfg *config.Config) error {
	m := metrics.New(log)

	orch, err := orchestrator.New(r, st, log, nil, orchestrator.Config{
		HooksDir:      cfg.HooksDir,
		DiscoveryCmd:  cfg.DiscoveryCmd,
		StatsFilePath: cfg.StatsFilePath,
		MaxSyncFanout: cfg.MaxSyncFanout,
		Metrics:       m,
	})
	if err != nil {
		return err
	}
	if err := orch.Start(ctx, cfg.ListenPort); err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsListen); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("shared-state: metrics server exited")
			}
		}()
	}

	<-ctx.Done()
	return nil
}
