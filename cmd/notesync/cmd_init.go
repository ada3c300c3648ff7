package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/repo"
)

func newInitCmd(a *app) *cobra.Command {
	var name, email, policy string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty notesync repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			r, err := repo.Init(abs)
			if err != nil {
				return err
			}

			if name != "" || email != "" || policy != "" {
				if _, err := repo.ParsePolicy(policy); err != nil {
					return err
				}
				cfg, err := r.ReadConfig()
				if err != nil {
					return err
				}
				cfg.User.Name = name
				cfg.User.Email = email
				cfg.Merge.Policy = policy
				if err := r.WriteConfig(cfg); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty notesync repository in %s\n", r.MetaDir+string(filepath.Separator))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "user.name written to the repository config")
	cmd.Flags().StringVar(&email, "email", "", "user.email written to the repository config")
	cmd.Flags().StringVar(&policy, "policy", "", "merge.policy written to the repository config")

	return cmd
}
