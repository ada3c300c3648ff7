package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/object"
)

func newVerifyCmd(a *app) *cobra.Command {
	var commitSpec string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify object integrity, or a commit's SSH signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.open()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if commitSpec != "" {
				h, err := r.ResolveCommitish(commitSpec)
				if err != nil {
					return err
				}
				c, err := r.ReadCommit(h)
				if err != nil {
					return err
				}
				fingerprint, err := verifyCommitSignature(c)
				if err != nil {
					return fmt.Errorf("%s: %w", h.Short(), err)
				}
				fmt.Fprintf(out, "good signature on %s by %s\n", h.Short(), fingerprint)
				return nil
			}

			report, err := r.Store.Verify()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ok: verified %d object(s): %d commit(s), %d tree(s), %d blob(s)\n",
				report.Objects,
				report.ByType[object.TypeCommit],
				report.ByType[object.TypeTree],
				report.ByType[object.TypeBlob])
			return nil
		},
	}

	cmd.Flags().StringVar(&commitSpec, "commit", "", "check the SSH signature of this commit instead")

	return cmd
}
