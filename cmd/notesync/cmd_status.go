package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/repo"
	"github.com/odvcencio/notesync/pkg/treediff"
)

func newStatusCmd(a *app) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.open()
			if err != nil {
				return err
			}

			entries, err := r.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if short {
				for _, e := range entries {
					fmt.Fprintf(out, "%s%s %s\n", e.Staged.Letter(), e.Worktree.Letter(), statusPath(e))
				}
				return nil
			}

			branch := currentBranchLabel(r)
			if _, err := r.ResolveRef("HEAD"); errors.Is(err, repo.ErrNotFound) {
				fmt.Fprintf(out, "on %s (no commits yet)\n", branch)
			} else {
				fmt.Fprintf(out, "on %s\n", branch)
			}
			if r.MergeInProgress() {
				fmt.Fprintln(out, "merge in progress (resolve, commit, or merge --abort)")
			}

			conflicts := lo.Filter(entries, func(e repo.StatusEntry, _ int) bool {
				return e.Staged == treediff.Conflicted
			})
			staged := lo.Filter(entries, func(e repo.StatusEntry, _ int) bool {
				return e.Staged != treediff.Conflicted && e.Staged != treediff.Unmodified && e.Staged != treediff.Untracked
			})
			unstaged := lo.Filter(entries, func(e repo.StatusEntry, _ int) bool {
				return e.Worktree == treediff.Modified || e.Worktree == treediff.Deleted || e.Worktree == treediff.TypeChanged
			})
			untracked := lo.Filter(entries, func(e repo.StatusEntry, _ int) bool {
				return e.Staged == treediff.Untracked
			})

			printStatusSection(out, "conflicts", conflicts, func(e repo.StatusEntry) treediff.Kind { return e.Staged })
			printStatusSection(out, "staged", staged, func(e repo.StatusEntry) treediff.Kind { return e.Staged })
			printStatusSection(out, "unstaged", unstaged, func(e repo.StatusEntry) treediff.Kind { return e.Worktree })
			if len(untracked) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "untracked:")
				for _, e := range untracked {
					fmt.Fprintf(out, "  %s\n", e.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "two-letter format")

	return cmd
}

func printStatusSection(out io.Writer, title string, entries []repo.StatusEntry, kind func(repo.StatusEntry) treediff.Kind) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", title)
	for _, e := range entries {
		fmt.Fprintf(out, "  %s %s\n", kind(e).Letter(), statusPath(e))
	}
}

func statusPath(e repo.StatusEntry) string {
	if e.RenamedFrom != "" {
		return e.RenamedFrom + " -> " + e.Path
	}
	return e.Path
}
