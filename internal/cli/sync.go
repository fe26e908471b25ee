package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"shared-state/internal/orchestrator"
	"shared-state/internal/reactor"
	"shared-state/internal/store"
	"shared-state/internal/wire"
)

// newSyncCmd implements "shared-state sync typeName [peerIP...]"
// (spec.md §6): an empty peer list triggers discovery.
func newSyncCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync typeName [peerIP...]",
		Short: "run one client-side sync round for a type against peers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, peers := args[0], args[1:]
			ctx := cmd.Context()

			if len(peers) == 0 {
				discovered, err := orchestrator.DiscoverCandidates(ctx, app.Reactor, app.Cfg.DiscoveryCmd)
				if err != nil {
					return addrError(err)
				}
				peers = discovered
			}
			if len(peers) == 0 {
				cmd.Println("no peers to sync with")
				return nil
			}

			for _, peer := range peers {
				if err := syncOnePeer(ctx, app, typeName, peer); err != nil {
					cmd.PrintErrf("sync with %s failed: %v\n", peer, err)
				}
			}
			return nil
		},
	}
}

func syncOnePeer(ctx context.Context, app *App, typeName, peer string) error {
	conn, err := reactor.Dial(ctx, app.Reactor, peer, wire.Port)
	if err != nil {
		return err
	}
	defer conn.Close()

	local, err := app.Store.Snapshot(typeName)
	if err != nil {
		return err
	}
	data, err := json.Marshal(local)
	if err != nil {
		return err
	}

	reply, _, err := wire.RunClient(conn, wire.Frame{TypeName: typeName, Data: data})
	if err != nil {
		return err
	}

	var incoming store.TypeState
	if err := json.Unmarshal(reply.Data, &incoming); err != nil {
		return err
	}
	_, err = app.Store.Merge(typeName, incoming, conn.RemoteAddr())
	return err
}
