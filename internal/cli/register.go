package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"shared-state/internal/store"
)

// newRegisterCmd implements "shared-state register typeName typeScope
// updateInterval bleachTTL" (spec.md §6).
func newRegisterCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "register typeName typeScope updateInterval bleachTTL",
		Short: "register a new replicated data type",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			updateInterval, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return usageError(err)
			}
			bleachTTL, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				return usageError(err)
			}

			cfg := store.TypeConfig{
				Name:           args[0],
				Scope:          args[1],
				UpdateInterval: updateInterval,
				BleachTTL:      bleachTTL,
			}
			if err := app.Store.Register(cfg); err != nil {
				return usageError(err)
			}
			cmd.Println("registered", cfg.Name)
			return nil
		},
	}
}
