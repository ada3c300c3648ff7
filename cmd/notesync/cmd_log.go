package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/repo"
)

func newLogCmd(a *app) *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [rev]",
		Short: "Show commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.open()
			if err != nil {
				return err
			}

			spec := "HEAD"
			if len(args) == 1 {
				spec = args[0]
			}
			start, err := r.ResolveCommitish(spec)
			if errors.Is(err, repo.ErrNotFound) && spec == "HEAD" {
				fmt.Fprintln(cmd.OutOrStdout(), "no commits yet")
				return nil
			}
			if err != nil {
				return err
			}

			entries, err := r.Log(start, limit)
			if err != nil {
				return err
			}

			headHash, _ := r.ResolveRef("HEAD")
			branch := currentBranchLabel(r)
			out := cmd.OutOrStdout()
			for _, e := range entries {
				printCommit(out, e.Hash, e.Commit, buildDecoration(e.Hash, headHash, branch), oneline)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits to show")

	return cmd
}

func printCommit(out io.Writer, h object.Hash, c *object.CommitObj, decoration string, oneline bool) {
	if oneline {
		if decoration != "" {
			fmt.Fprintf(out, "%s %s %s\n", h.Short(), decoration, firstLine(c.Message))
		} else {
			fmt.Fprintf(out, "%s %s\n", h.Short(), firstLine(c.Message))
		}
		return
	}
	if decoration != "" {
		fmt.Fprintf(out, "commit %s %s\n", h, decoration)
	} else {
		fmt.Fprintf(out, "commit %s\n", h)
	}
	if c.IsMerge() {
		parents := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			parents[i] = p.Short()
		}
		fmt.Fprintf(out, "Merge:  %s\n", strings.Join(parents, " "))
	}
	fmt.Fprintf(out, "Author: %s\n", c.Author.Identity())
	fmt.Fprintf(out, "Date:   %s\n", c.Author.Time().Format("2006-01-02 15:04:05 -0700"))
	fmt.Fprintln(out)
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
	fmt.Fprintln(out)
}

// buildDecoration returns a string like "(HEAD -> main)" if the commit is
// the current HEAD, or "" otherwise.
func buildDecoration(commitHash, headHash object.Hash, branchName string) string {
	if commitHash != headHash || headHash == "" {
		return ""
	}
	if branchName != "" && branchName != "HEAD" {
		return "(HEAD -> " + branchName + ")"
	}
	return "(HEAD)"
}
