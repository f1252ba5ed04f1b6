package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/engine"
	"github.com/arkaos/arka/internal/memory"
	"github.com/arkaos/arka/internal/timeparsing"
	"github.com/arkaos/arka/internal/ui"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newMemoryShowCmd(), newMemoryTailCmd())
	return cmd
}

// indexRow is one scope's latest outcome.
type indexRow struct {
	Scope string `json:"scope"`
	memory.IndexEntry
}

func newMemoryShowCmd() *cobra.Command {
	var (
		since   string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the latest outcome per scope",
		Example: `  arka memory show
  arka memory show --since 2h
  arka memory show --since "yesterday" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, s := recorder()
			rows, err := indexRows(rec.Index(s.Actor), since, time.Now())
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(cmd.OutOrStdout(), rows)
			}
			renderIndex(cmd.OutOrStdout(), s.Actor, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only scopes touched since (e.g. 2h, -1d, yesterday, 2025-01-15)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

// indexRows flattens the index, newest first, keeping entries at or after
// since.
func indexRows(index map[string]memory.IndexEntry, since string, now time.Time) ([]indexRow, error) {
	var cutoff time.Time
	if since != "" {
		// A bare duration looks back.
		if timeparsing.IsCompactDuration(since) && !strings.HasPrefix(since, "+") && !strings.HasPrefix(since, "-") {
			since = "-" + since
		}
		t, err := timeparsing.ParseRelativeTime(since, now)
		if err != nil {
			return nil, &engine.InputError{Msg: fmt.Sprintf("--since: %v", err)}
		}
		cutoff = t
	}
	rows := []indexRow{}
	for scope, e := range index {
		if !cutoff.IsZero() {
			last, err := time.Parse(memory.TimeLayout, e.Last)
			if err != nil || last.Before(cutoff) {
				continue
			}
		}
		rows = append(rows, indexRow{Scope: scope, IndexEntry: e})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Last != rows[j].Last {
			return rows[i].Last > rows[j].Last
		}
		return rows[i].Scope < rows[j].Scope
	})
	return rows, nil
}

func renderIndex(w io.Writer, actor string, rows []indexRow) {
	fmt.Fprintln(w, ui.RenderCategory("memory: "+actor))
	if len(rows) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("nothing recorded"))
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s  %s  %s  %s\n", ui.RenderMuted(r.Last), ui.RenderStatus(r.Status), r.ActionKey, r.Scope)
	}
}

func newMemoryTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Follow the audit log as actions are recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, s := recorder()
			out := cmd.OutOrStdout()
			var writeErr error
			err := rec.Tail(cmd.Context(), s.Actor, func(r memory.Record) {
				if writeErr == nil {
					writeErr = outputCompactJSON(out, r)
				}
			})
			if err != nil {
				return err
			}
			return writeErr
		},
	}
}
