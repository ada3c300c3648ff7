package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/repo"
)

func newCheckoutCmd(a *app) *cobra.Command {
	var createBranch bool
	var dryRun bool
	var restore bool

	cmd := &cobra.Command{
		Use:   "checkout <branch|commit>",
		Short: "Switch branches or restore deleted files",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.open()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if restore {
				idx, err := r.ReadIndex()
				if err != nil {
					return err
				}
				res, err := r.CheckoutIndex(idx, repo.CheckoutOptions{Strategy: repo.CheckoutRecreateMissing})
				if err != nil {
					return explainDirty(err)
				}
				fmt.Fprintf(out, "restored %d file(s)\n", len(res.Updated))
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("checkout needs a branch or commit")
			}
			target := args[0]

			if dryRun {
				commit, err := r.ResolveCommitish(target)
				if err != nil {
					return err
				}
				res, err := r.CheckoutTree(commit, repo.CheckoutOptions{Strategy: repo.CheckoutNone})
				if err != nil {
					return err
				}
				for _, p := range res.Updated {
					fmt.Fprintf(out, "  update %s\n", p)
				}
				for _, p := range res.Removed {
					fmt.Fprintf(out, "  remove %s\n", p)
				}
				for _, p := range res.Conflicts {
					fmt.Fprintf(out, "  dirty  %s\n", p)
				}
				return nil
			}

			if createBranch {
				head, err := r.ResolveRef("HEAD")
				if err != nil {
					return fmt.Errorf("cannot resolve HEAD: %w", err)
				}
				if err := r.CreateBranch(target, head); err != nil {
					return err
				}
			}

			if err := r.Checkout(target); err != nil {
				return explainDirty(err)
			}

			switch {
			case createBranch:
				fmt.Fprintf(out, "switched to new branch '%s'\n", target)
			case currentBranchLabel(r) == "HEAD":
				h, _ := r.ResolveRef("HEAD")
				fmt.Fprintf(out, "HEAD is now at %s (detached)\n", h.Short())
			default:
				fmt.Fprintf(out, "switched to branch '%s'\n", target)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&createBranch, "branch", "b", false, "create and switch to a new branch")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list what would change without touching files")
	cmd.Flags().BoolVar(&restore, "restore", false, "recreate tracked files deleted from the working tree")

	return cmd
}

func explainDirty(err error) error {
	var dirty *repo.DirtyCheckoutError
	if errors.As(err, &dirty) {
		return fmt.Errorf("%w\ncommit, reset --hard, or remove them first", err)
	}
	return err
}
