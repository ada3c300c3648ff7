package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/history"
	"github.com/odvcencio/notesync/pkg/object"
)

func newHistoryCmd(a *app) *cobra.Command {
	var from string
	var oneline bool
	var limit int
	var stats bool

	cmd := &cobra.Command{
		Use:   "history <path>",
		Short: "Show the commits that changed a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, settings, err := a.open()
			if err != nil {
				return err
			}
			engine, _, err := a.engine(r, settings)
			if err != nil {
				return err
			}

			var start object.Hash
			if from != "" {
				if start, err = r.ResolveCommitish(from); err != nil {
					return err
				}
			}

			it := history.New(r, engine, args[0], start, history.WithLogger(a.logger))
			out := cmd.OutOrStdout()
			for n := 0; limit <= 0 || n < limit; n++ {
				h, ok, err := it.Next(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				c, err := r.ReadCommit(h)
				if err != nil {
					return err
				}
				decoration := ""
				if it.IsCreationCommit() {
					decoration = "(created)"
				}
				printCommit(out, h, c, decoration, oneline)
			}
			if stats {
				return writeCacheStats(cmd.ErrOrStderr(), a.metrics)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "start at this commit instead of HEAD")
	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of commits to show (0 for all)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print diff cache counters on stderr")

	return cmd
}
