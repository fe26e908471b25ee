// Package orchestrator wires the reactor, wire protocol, and state
// store together into the three long-lived loops from spec.md §4.9:
// accept, sync, and bleach.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"shared-state/internal/metrics"
	"shared-state/internal/reactor"
	"shared-state/internal/store"
)

// recentDialCacheSize bounds the "recently dialled" cache that keeps
// two overlapping sync ticks for the same (type,peer) pair from both
// dialling concurrently.
const recentDialCacheSize = 256

// Config carries everything the orchestrator's loops need from the
// environment collaborators described in spec.md §6.
type Config struct {
	HooksDir      string // SHARED_STATE_HOOKS_DIR
	DiscoveryCmd  string // SHARED_STATE_GET_CANDIDATES_CMD
	StatsFilePath string // SHARED_STATE_NET_STAT_FILE_PATH
	MaxSyncFanout int    // bound on concurrent (type,peer) dials per tick

	// Metrics is optional; when nil, metric observations are no-ops.
	Metrics *metrics.Metrics
}

// Orchestrator owns the three detached tasks and the collaborators
// they call out to.
type Orchestrator struct {
	r      *reactor.Reactor
	store  *store.Store
	log    *logrus.Logger
	clock  clock.Clock
	cfg    Config
	stats  *store.StatsFile
	dialed *lru.Cache[string, struct{}]
}

// New builds an Orchestrator. clk defaults to clock.New() (real time);
// tests inject clock.NewMock().
func New(r *reactor.Reactor, st *store.Store, log *logrus.Logger, clk clock.Clock, cfg Config) (*Orchestrator, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.MaxSyncFanout <= 0 {
		cfg.MaxSyncFanout = 8
	}
	cache, err := lru.New[string, struct{}](recentDialCacheSize)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lru cache: %w", err)
	}
	return &Orchestrator{
		r:      r,
		store:  st,
		log:    log,
		clock:  clk,
		cfg:    cfg,
		stats:  store.NewStatsFile(cfg.StatsFilePath),
		dialed: cache,
	}, nil
}

// Start spawns the accept, sync, and bleach loops as detached tasks
// bound to ctx, per spec.md §4.9. port is the listen port for the
// accept loop (spec.md §6: TCP port 3490 in production, overridable
// for tests).
func (o *Orchestrator) Start(ctx context.Context, port int) error {
	listener, err := reactor.Listen(o.r, port)
	if err != nil {
		return fmt.Errorf("orchestrator: listen: %w", err)
	}

	reactor.SpawnDetached(ctx, o.log, "accept-loop", func(ctx context.Context) error {
		return o.acceptLoop(ctx, listener)
	})
	reactor.SpawnDetached(ctx, o.log, "sync-loop", func(ctx context.Context) error {
		return o.syncLoop(ctx)
	})
	reactor.SpawnDetached(ctx, o.log, "bleach-loop", func(ctx context.Context) error {
		return o.bleachLoop(ctx)
	})
	return nil
}
