package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReplaySpoolCommand creates the replay-spool command.
func NewReplaySpoolCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay-spool",
		Short: "Store batches left in the local spool by earlier runs",
		Long: `Hand every batch in SPOOL_DIR to the events store, then empty the spool.
Every run does this first; this command does only that.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOrBackground(cmd.Context())
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.buildPipeline(ctx); err != nil {
				return err
			}

			if !a.spool.Pending() {
				fmt.Fprintln(cmd.OutOrStdout(), "spool is empty, nothing to replay")
				return nil
			}
			inserted, err := a.ingest.ReplaySpool(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d spooled events stored\n", inserted)
			return nil
		},
	}
}
