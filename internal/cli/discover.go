package cli

import (
	"github.com/spf13/cobra"

	"shared-state/internal/orchestrator"
)

// newDiscoverCmd implements "shared-state discover" (spec.md §6):
// invoke the discovery collaborator and print one candidate IP per
// line.
func newDiscoverCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "invoke the discovery collaborator and print candidate peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := orchestrator.DiscoverCandidates(cmd.Context(), app.Reactor, app.Cfg.DiscoveryCmd)
			if err != nil {
				return addrError(err)
			}
			for _, c := range candidates {
				cmd.Println(c)
			}
			return nil
		},
	}
}
