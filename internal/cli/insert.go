package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// newInsertCmd implements "shared-state insert typeName key json-data"
// (spec.md §6). The data is piped through the reqsync collaborator
// before being stored, per the CLI flow's contract.
func newInsertCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "insert typeName key data",
		Short: "insert or replace a locally authored record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, key, raw := args[0], args[1], args[2]
			if !json.Valid([]byte(raw)) {
				return usageError(errInvalidJSON)
			}

			merged, err := pipeThroughReqsync(typeName, []byte(raw))
			if err != nil {
				return err
			}
			if !json.Valid(merged) {
				merged = []byte(raw)
			}

			if err := app.Store.Insert(typeName, key, merged); err != nil {
				return usageError(err)
			}
			cmd.Println("inserted", typeName, key)
			return nil
		},
	}
}
