// Package cli implements shared-state's one-shot command-line
// operations (spec.md §6): discover, dump, get, insert, peer,
// register, sync. Each uses the same store type and wire protocol as
// the long-lived peer process, loads the registered types from the
// config file, and exits after finishing. Records are held only in the
// invoking process's memory and are never written to disk, so a record
// stored by insert is discarded when the command exits and is seen
// neither by the peer process nor by a later get or dump.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shared-state/internal/reactor"
	"shared-state/internal/store"
	"shared-state/pkg/config"
)

// App bundles the dependencies every subcommand needs: the shared
// state store, a reactor to drive any outbound wire sessions, process
// configuration, and a logger.
type App struct {
	Store   *store.Store
	Reactor *reactor.Reactor
	Cfg     *config.Config
	Log     *logrus.Logger

	// RunDaemon starts the long-lived peer process (accept/sync/bleach
	// loops) and blocks until its context is cancelled. Invoked when
	// shared-state is run with no subcommand at all.
	RunDaemon func(cmd *cobra.Command) error
}

// NewRootCommand builds the "shared-state" root cobra.Command with all
// of spec.md §6's one-shot subcommands registered, plus the bare
// invocation (no subcommand) starting the long-lived peer process.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "shared-state",
		Short:         "Peer-to-peer eventually-consistent key-value replication",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.RunDaemon == nil {
				return cmd.Help()
			}
			return app.RunDaemon(cmd)
		},
	}
	root.AddCommand(
		newRegisterCmd(app),
		newInsertCmd(app),
		newGetCmd(app),
		newDumpCmd(app),
		newPeerCmd(app),
		newSyncCmd(app),
		newDiscoverCmd(app),
	)
	return root
}
