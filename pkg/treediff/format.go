package treediff

import (
	"fmt"
	"strings"
)

// FormatNameStatus renders one line per entry:
//
//	M	notes/todo.md
//	R	old.md -> new.md
func FormatNameStatus(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case Renamed, Copied:
			fmt.Fprintf(&b, "%s\t%s -> %s\n", e.Kind.Letter(), e.OldPath, e.NewPath)
		default:
			fmt.Fprintf(&b, "%s\t%s\n", e.Kind.Letter(), e.Path())
		}
	}
	return b.String()
}

// FormatStat summarizes entries by kind, e.g. "3 changed: 1 added, 2 modified".
func FormatStat(entries []Entry) string {
	if len(entries) == 0 {
		return "no changes"
	}
	counts := make(map[Kind]int)
	for _, e := range entries {
		counts[e.Kind]++
	}
	var parts []string
	for k := Unmodified; k <= Conflicted; k++ {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return fmt.Sprintf("%d changed: %s", len(entries), strings.Join(parts, ", "))
}
