package cli

import (
	"github.com/spf13/cobra"
)

// newGetCmd implements "shared-state get typeName key" (spec.md §6).
func newGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get typeName key",
		Short: "print a single record's data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, key := args[0], args[1]
			entry, ok, err := app.Store.Get(typeName, key)
			if err != nil {
				return usageError(err)
			}
			if !ok {
				return usageError(errNoSuchKey)
			}

			out, err := pipeThroughReqsync(typeName, entry.Data)
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
}
