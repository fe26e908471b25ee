package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// newDumpCmd implements "shared-state dump" (spec.md §6): print every
// registered type's current state as JSON.
func newDumpCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "print the full local state of every registered type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make(map[string]interface{}, len(app.Store.Configs()))
			for _, cfg := range app.Store.Configs() {
				snap, err := app.Store.Snapshot(cfg.Name)
				if err != nil {
					return usageError(err)
				}
				out[cfg.Name] = snap
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
