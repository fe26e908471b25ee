package orchestrator

import (
	"context"
	"encoding/json"

	"shared-state/internal/reactor"
	"shared-state/internal/store"
	"shared-state/internal/wire"
)

// acceptLoop awaits inbound connections and spawns a detached handler
// per connection (spec.md §4.9 item 1).
func (o *Orchestrator) acceptLoop(ctx context.Context, listener *reactor.Listener) error {
	defer listener.Close()
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.log.WithError(err).Warn("orchestrator: accept failed")
			continue
		}
		reactor.SpawnDetached(ctx, o.log, "sync-handler", func(ctx context.Context) error {
			return o.handleConn(ctx, conn)
		})
	}
}

// handleConn runs the server side of one sync session: merge the
// peer's frame, reply with our own, record stats, and notify hooks if
// the merge produced significant changes (spec.md §4.9 item 1).
func (o *Orchestrator) handleConn(ctx context.Context, conn *reactor.Conn) error {
	defer conn.Close()

	start := o.clock.Now()
	var mergedType string
	var changes int

	stats, err := wire.RunServer(conn, o.log, func(req wire.Frame) (wire.Frame, error) {
		var incoming store.TypeState
		if err := json.Unmarshal(req.Data, &incoming); err != nil {
			return wire.Frame{}, err
		}
		n, err := o.store.Merge(req.TypeName, incoming, conn.RemoteAddr())
		if err != nil {
			return wire.Frame{}, err
		}
		mergedType, changes = req.TypeName, n

		local, err := o.store.Snapshot(req.TypeName)
		if err != nil {
			return wire.Frame{}, err
		}
		data, err := json.Marshal(local)
		if err != nil {
			return wire.Frame{}, err
		}
		return wire.Frame{TypeName: req.TypeName, Data: data}, nil
	})
	if err != nil {
		return err
	}

	if err := o.stats.Append(store.NetworkStats{
		Peer:      conn.RemoteAddr().String(),
		Timestamp: start,
		RTT:       stats.RTT,
		UpMbps:    stats.UpMbps,
		DownMbps:  stats.DownMbps,
	}); err != nil {
		o.log.WithError(err).Warn("orchestrator: append stats failed")
	}

	if changes > 0 {
		o.runHooks(ctx, mergedType)
	}
	return nil
}
