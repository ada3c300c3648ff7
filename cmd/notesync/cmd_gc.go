package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGcCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete objects no ref, reflog, or index entry can reach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.open()
			if err != nil {
				return err
			}

			summary, err := r.GC(dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(summary.Pruned) == 0 {
				fmt.Fprintf(out, "nothing to prune (%d reachable)\n", summary.Reachable)
				return nil
			}
			verb := "pruned"
			if dryRun {
				verb = "would prune"
				for _, h := range summary.Pruned {
					fmt.Fprintf(out, "  %s\n", h.Short())
				}
			}
			fmt.Fprintf(out, "%s %d unreachable object(s), %d reachable\n", verb, len(summary.Pruned), summary.Reachable)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list unreachable objects without deleting them")

	return cmd
}
