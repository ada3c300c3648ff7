package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/repo"
)

func newResetCmd(a *app) *cobra.Command {
	var soft, mixed, hard bool

	cmd := &cobra.Command{
		Use:   "reset [--soft|--mixed|--hard] [commit] | reset [paths...]",
		Short: "Move HEAD to a commit, or unstage paths",
		Long: "With --soft, --mixed or --hard, moves the current branch (or detached HEAD)\n" +
			"to commit (default HEAD). Without a mode, restores the index entries of\n" +
			"paths (default all) from HEAD and leaves the working tree alone.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.open()
			if err != nil {
				return err
			}

			modes := 0
			mode := repo.ResetMixed
			for _, m := range []struct {
				set  bool
				mode repo.ResetMode
			}{{soft, repo.ResetSoft}, {mixed, repo.ResetMixed}, {hard, repo.ResetHard}} {
				if m.set {
					modes++
					mode = m.mode
				}
			}
			if modes > 1 {
				return fmt.Errorf("--soft, --mixed and --hard are mutually exclusive")
			}
			if modes == 0 {
				return r.ResetPaths(args)
			}
			if len(args) > 1 {
				return fmt.Errorf("reset --%s takes at most one commit", mode)
			}

			spec := "HEAD"
			if len(args) == 1 {
				spec = args[0]
			}
			target, err := r.ResolveCommitish(spec)
			if err != nil {
				return err
			}
			if err := r.Reset(target, mode); err != nil {
				return err
			}
			c, err := r.ReadCommit(target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s %s\n", target.Short(), firstLine(c.Message))
			return nil
		},
	}

	cmd.Flags().BoolVar(&soft, "soft", false, "move the branch only")
	cmd.Flags().BoolVar(&mixed, "mixed", false, "move the branch and reset the index")
	cmd.Flags().BoolVar(&hard, "hard", false, "move the branch and reset the index and working tree")

	return cmd
}
