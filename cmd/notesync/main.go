package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "notesync",
		Short:         "Version control for synced notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./notesync.yaml or $HOME/.notesync/notesync.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newAddCmd(a))
	root.AddCommand(newStatusCmd(a))
	root.AddCommand(newCommitCmd(a))
	root.AddCommand(newLogCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newDiffCmd(a))
	root.AddCommand(newBranchCmd(a))
	root.AddCommand(newTagCmd(a))
	root.AddCommand(newCheckoutCmd(a))
	root.AddCommand(newResetCmd(a))
	root.AddCommand(newMergeCmd(a))
	root.AddCommand(newResolveCmd(a))
	root.AddCommand(newReflogCmd(a))
	root.AddCommand(newCacheCmd(a))
	root.AddCommand(newVerifyCmd(a))
	root.AddCommand(newGcCmd(a))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "notesync "+version)
		},
	}
}
