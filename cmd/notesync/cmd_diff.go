package main

import (
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/repo"
	"github.com/odvcencio/notesync/pkg/textmerge"
	"github.com/odvcencio/notesync/pkg/treediff"
)

func newDiffCmd(a *app) *cobra.Command {
	var nameStatus, stat bool

	cmd := &cobra.Command{
		Use:   "diff [<from> [<to>]]",
		Short: "Show changes between commits",
		Long: "With no arguments, compares HEAD with its first parent. With one, compares\n" +
			"that commit with HEAD. With two, compares the first with the second.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, settings, err := a.open()
			if err != nil {
				return err
			}
			engine, _, err := a.engine(r, settings)
			if err != nil {
				return err
			}

			fromTree, toTree, err := diffEndpoints(r, args)
			if err != nil {
				return err
			}
			entries, err := engine.Diff(fromTree, toTree)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case nameStatus:
				fmt.Fprint(out, treediff.FormatNameStatus(entries))
			case stat:
				fmt.Fprintln(out, treediff.FormatStat(entries))
			default:
				return writePatch(out, r, entries)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&nameStatus, "name-status", false, "show only changed paths and their status")
	cmd.Flags().BoolVar(&stat, "stat", false, "show a summary of changes")

	return cmd
}

func diffEndpoints(r *repo.Repo, args []string) (object.Hash, object.Hash, error) {
	commitTree := func(spec string) (object.Hash, *object.CommitObj, error) {
		h, err := r.ResolveCommitish(spec)
		if err != nil {
			return "", nil, err
		}
		c, err := r.ReadCommit(h)
		if err != nil {
			return "", nil, err
		}
		return c.TreeHash, c, nil
	}

	switch len(args) {
	case 0:
		to, c, err := commitTree("HEAD")
		if err != nil {
			return "", "", err
		}
		var from object.Hash
		if len(c.Parents) > 0 {
			parent, err := r.ReadCommit(c.Parents[0])
			if err != nil {
				return "", "", err
			}
			from = parent.TreeHash
		}
		return from, to, nil
	case 1:
		from, _, err := commitTree(args[0])
		if err != nil {
			return "", "", err
		}
		to, _, err := commitTree("HEAD")
		return from, to, err
	default:
		from, _, err := commitTree(args[0])
		if err != nil {
			return "", "", err
		}
		to, _, err := commitTree(args[1])
		return from, to, err
	}
}

func writePatch(out io.Writer, r *repo.Repo, entries []treediff.Entry) error {
	blob := func(h object.Hash) ([]byte, error) {
		if h == "" {
			return nil, nil
		}
		b, err := r.Store.ReadBlob(h)
		if err != nil {
			return nil, err
		}
		return b.Data, nil
	}

	files := lo.Filter(entries, func(e treediff.Entry, _ int) bool { return e.Kind != treediff.Unmodified })
	for _, e := range files {
		if e.Kind == treediff.TypeChanged {
			fmt.Fprintf(out, "diff %s %s\n", e.Path(), e.Kind)
			continue
		}
		oldData, err := blob(e.OldHash)
		if err != nil {
			return err
		}
		newData, err := blob(e.NewHash)
		if err != nil {
			return err
		}
		fromName, toName := "a/"+e.OldPath, "b/"+e.NewPath
		if e.OldPath == "" {
			fromName = "/dev/null"
		}
		if e.NewPath == "" {
			toName = "/dev/null"
		}
		fmt.Fprintf(out, "diff %s %s\n", lo.Ternary(e.OldPath != "", e.OldPath, e.NewPath), e.Kind)
		if textmerge.IsBinary(oldData) || textmerge.IsBinary(newData) {
			fmt.Fprintln(out, "binary files differ")
			continue
		}
		patch, err := textmerge.Unified(fromName, toName, oldData, newData, 3)
		if err != nil {
			return err
		}
		fmt.Fprint(out, patch)
	}
	return nil
}
