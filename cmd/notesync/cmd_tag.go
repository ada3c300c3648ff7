package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTagCmd(a *app) *cobra.Command {
	var deleteTag string
	var force bool
	var showHash bool

	cmd := &cobra.Command{
		Use:   "tag [name] [target]",
		Short: "List, create, or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.open()
			if err != nil {
				return err
			}

			if strings.TrimSpace(deleteTag) != "" {
				if len(args) > 0 {
					return fmt.Errorf("tag --delete does not accept positional args")
				}
				return r.DeleteTag(deleteTag)
			}

			if len(args) == 0 {
				names, err := r.TagNames()
				if err != nil {
					return err
				}
				tags, err := r.ListTags()
				if err != nil {
					return err
				}
				for _, name := range names {
					if showHash {
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", tags[name], name)
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), name)
					}
				}
				return nil
			}

			spec := "HEAD"
			if len(args) == 2 {
				spec = strings.TrimSpace(args[1])
			}
			target, err := r.ResolveCommitish(spec)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", spec, err)
			}
			return r.CreateTag(args[0], target, force)
		},
	}

	cmd.Flags().StringVarP(&deleteTag, "delete", "d", "", "delete the named tag")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	cmd.Flags().BoolVar(&showHash, "show-hash", false, "show tag target hashes when listing")

	return cmd
}
