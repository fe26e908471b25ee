package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"shared-state/internal/store"
)

// newPeerCmd implements "shared-state peer" (spec.md §6): print the
// bounded per-peer history recorded in the stats file.
func newPeerCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "peer",
		Short: "print recorded per-peer sync statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sf := store.NewStatsFile(app.Cfg.StatsFilePath)
			all, err := sf.All()
			if err != nil {
				return usageError(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		},
	}
}
