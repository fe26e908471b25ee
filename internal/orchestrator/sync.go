package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"shared-state/internal/reactor"
	"shared-state/internal/store"
	"shared-state/internal/wire"
)

// syncTickInterval is how often the sync loop wakes (spec.md §4.9 item
// 2: "once per second").
const syncTickInterval = 1 // seconds, passed to reactor.Timer.Wait

// syncLoop wakes once per second, reloads type configs, determines
// which types are due this tick, discovers candidate peers, and runs
// one client-side sync session per (type, peer) pair, bounded to
// cfg.MaxSyncFanout concurrent dials.
func (o *Orchestrator) syncLoop(ctx context.Context) error {
	timer, err := reactor.NewTimer(o.r)
	if err != nil {
		return fmt.Errorf("orchestrator: sync timer: %w", err)
	}
	defer timer.Close()

	for {
		if _, err := timer.Wait(ctx, syncTickInterval, 0); err != nil {
			return err
		}

		if err := o.store.Load(); err != nil {
			o.log.WithError(err).Warn("orchestrator: sync loop reload config failed")
			continue
		}

		due := o.dueTypes()
		if len(due) == 0 {
			continue
		}

		peers, err := o.discoverCandidates(ctx)
		if err != nil {
			o.log.WithError(err).Warn("orchestrator: discovery failed")
			continue
		}
		if len(peers) == 0 {
			continue
		}
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.SetPeerCount(len(peers))
		}

		o.syncRound(ctx, due, peers)
	}
}

// dueTypes returns the registered types whose updateInterval divides
// the current wall-clock second (spec.md §4.9 item 2).
func (o *Orchestrator) dueTypes() []store.TypeConfig {
	now := o.clock.Now().Unix()
	var due []store.TypeConfig
	for _, cfg := range o.store.Configs() {
		if cfg.UpdateInterval > 0 && now%cfg.UpdateInterval == 0 {
			due = append(due, cfg)
		}
	}
	return due
}

// syncRound runs one client-side sync session per (type, peer) pair,
// skipping pairs already in flight this tick via the recently-dialled
// cache, and bounding concurrency with an errgroup.
func (o *Orchestrator) syncRound(ctx context.Context, due []store.TypeConfig, peers []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxSyncFanout)

	for _, cfg := range due {
		cfg := cfg
		for _, peer := range peers {
			peer := peer
			key := cfg.Name + "|" + peer
			if _, ok := o.dialed.Get(key); ok {
				continue
			}
			o.dialed.Add(key, struct{}{})

			g.Go(func() error {
				defer o.dialed.Remove(key)
				if err := o.syncOne(gctx, cfg.Name, peer); err != nil {
					o.log.WithError(err).WithFields(logrus.Fields{
						"type": cfg.Name, "peer": peer,
					}).Warn("orchestrator: sync round failed for peer")
				}
				return nil // per-peer errors never abort the round (spec.md §4.9)
			})
		}
	}
	_ = g.Wait()
}

// syncOne dials peer, runs the client side of the wire protocol for
// typeName, and merges the reply into local state.
func (o *Orchestrator) syncOne(ctx context.Context, typeName, peer string) error {
	conn, err := reactor.Dial(ctx, o.r, peer, wire.Port)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	local, err := o.store.Snapshot(typeName)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	data, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	reply, stats, err := wire.RunClient(conn, wire.Frame{TypeName: typeName, Data: data})
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	var incoming store.TypeState
	if err := json.Unmarshal(reply.Data, &incoming); err != nil {
		return fmt.Errorf("unmarshal reply: %w", err)
	}
	changes, err := o.store.Merge(typeName, incoming, conn.RemoteAddr())
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	if err := o.stats.Append(store.NetworkStats{
		Peer: peer, Timestamp: o.clock.Now(),
		RTT: stats.RTT, UpMbps: stats.UpMbps, DownMbps: stats.DownMbps,
	}); err != nil {
		o.log.WithError(err).Warn("orchestrator: append sync stats failed")
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveSyncRound(stats.RTT.Seconds(), changes)
	}

	if changes > 0 {
		o.runHooks(ctx, typeName)
	}
	return nil
}
