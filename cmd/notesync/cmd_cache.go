package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the commit diff cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached diff of this repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, settings, err := a.open()
			if err != nil {
				return err
			}
			engine, _, err := a.engine(r, settings)
			if err != nil {
				return err
			}
			if err := engine.Purge(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s diff cache for project %s\n", settings.CacheBackend, engine.Project())
			return nil
		},
	})
	return cmd
}

// writeCacheStats prints every diff cache counter in reg as "op/result n".
func writeCacheStats(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		if mf.GetName() != "notesync_diffcache_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			lines = append(lines, fmt.Sprintf("%s/%s %.0f", labels["op"], labels["result"], m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		_, err = fmt.Fprintln(w, "diff cache: no operations")
		return err
	}
	_, err = fmt.Fprintf(w, "diff cache: %s\n", strings.Join(lines, ", "))
	return err
}
