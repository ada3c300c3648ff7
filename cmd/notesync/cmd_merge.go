package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/repo"
)

func newMergeCmd(a *app) *cobra.Command {
	var abort bool
	var policyName string
	var progress bool

	cmd := &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge a branch into the current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, settings, err := a.open()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if abort {
				if err := r.AbortMerge(); err != nil {
					return err
				}
				fmt.Fprintln(out, "merge aborted")
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("merge needs a branch")
			}
			name := args[0]

			if !cmd.Flags().Changed("policy") {
				policyName = settings.MergePolicy
			}
			policy, err := repo.ParsePolicy(policyName)
			if err != nil {
				return err
			}

			ref, err := r.Ref(name)
			if err != nil {
				return fmt.Errorf("merge %s: %w", name, err)
			}
			tip, _, err := ref.TargetCommit()
			if err != nil {
				return fmt.Errorf("merge %s: %w", name, err)
			}
			analysis, _, err := r.AnalyzeMerge(tip)
			if err != nil {
				return err
			}

			sig := a.signature(r, settings)
			opts := repo.MergeOptions{Signature: &sig, Policy: policy}
			if progress {
				opts.Progress = progressPrinter(cmd.ErrOrStderr())
			}

			fmt.Fprintf(out, "merging %s into %s (%s)...\n", name, currentBranchLabel(r), analysis)
			ok, err := r.MergeBranch(cmd.Context(), name, opts)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "merge left conflicts:")
				idx, err := r.ReadIndex()
				if err != nil {
					return err
				}
				for _, c := range idx.Conflicts() {
					fmt.Fprintf(out, "  U %s\n", c.Path)
				}
				fmt.Fprintln(out, "fix them and run notesync commit, notesync resolve, or notesync merge --abort")
				return nil
			}

			head, _ := r.ResolveRef("HEAD")
			fmt.Fprintf(out, "HEAD is now at %s\n", head.Short())
			return nil
		},
	}

	cmd.Flags().BoolVar(&abort, "abort", false, "abandon the merge in progress")
	cmd.Flags().StringVar(&policyName, "policy", "", "conflict policy: ours, theirs, union, or manual (default from merge.policy)")
	cmd.Flags().BoolVar(&progress, "progress", false, "report progress on stderr")

	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	var policyName string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Settle the conflicts of the merge in progress with a policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, settings, err := a.open()
			if err != nil {
				return err
			}
			if !r.MergeInProgress() {
				return fmt.Errorf("no merge in progress")
			}
			if !cmd.Flags().Changed("policy") {
				policyName = settings.MergePolicy
			}
			policy, err := repo.ParsePolicy(policyName)
			if err != nil {
				return err
			}
			if !r.ResolveConflicts(cmd.Context(), policy) {
				return fmt.Errorf("conflicts remain after %s resolution", policy)
			}
			head, _ := r.ResolveRef("HEAD")
			fmt.Fprintf(cmd.OutOrStdout(), "resolved with %s: HEAD is now at %s\n", policy, head.Short())
			return nil
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", "", "ours, theirs, union, or manual (default from merge.policy)")

	return cmd
}

func progressPrinter(w io.Writer) repo.ProgressFunc {
	return func(p repo.Progress) {
		if p.Total > 0 {
			fmt.Fprintf(w, "%s: %d/%d\n", p.Phase, p.Current, p.Total)
		} else {
			fmt.Fprintf(w, "%s: %d\n", p.Phase, p.Current)
		}
	}
}
