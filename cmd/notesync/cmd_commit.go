package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/repo"
)

func newCommitCmd(a *app) *cobra.Command {
	var message string
	var sign bool
	var signKey string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record staged changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, settings, err := a.open()
			if err != nil {
				return err
			}
			if strings.TrimSpace(message) == "" && !r.MergeInProgress() {
				return fmt.Errorf("commit message is required (-m)")
			}

			var signer repo.CommitSigner
			if sign || signKey != "" {
				s, keyPath, err := newSSHCommitSigner(signKey)
				if err != nil {
					return err
				}
				a.logger.Debug("signing commit", zap.String("key", keyPath))
				signer = s
			}

			h, err := r.Commit(message, a.signature(r, settings), signer)
			if err != nil {
				return err
			}
			c, err := r.ReadCommit(h)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", currentBranchLabel(r), h.Short(), firstLine(c.Message))
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message (defaults to the stored merge message while merging)")
	cmd.Flags().BoolVar(&sign, "sign", false, "sign the commit with the default SSH key")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "sign the commit with this SSH private key")

	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
