package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/ui"
)

// actionRow describes one configured action.
type actionRow struct {
	Key       string `json:"key"`
	Group     string `json:"group,omitempty"`
	Operation string `json:"operation"`
	Type      string `json:"type"`
	Handler   string `json:"handler"`
	Error     string `json:"error,omitempty"`
}

func newActionsCmd() *cobra.Command {
	var (
		group   string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List configured action keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			var rows []actionRow
			for _, e := range ws.rt.Table().Keys() {
				if group != "" && e.Group != group {
					continue
				}
				row := actionRow{Key: e.Key, Group: e.Group}
				def, err := ws.rt.Table().Find(e.Key)
				if err != nil {
					row.Error = err.Error()
				} else {
					row.Operation = string(def.Operation)
					row.Type = def.Type().Name
					row.Handler = ws.rt.HandlerKind(def)
				}
				rows = append(rows, row)
			}
			if jsonOut {
				if rows == nil {
					rows = []actionRow{}
				}
				return outputJSON(cmd.OutOrStdout(), rows)
			}
			renderActions(cmd.OutOrStdout(), rows, ws.rt.Table().AliasNames())
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Only list actions in this group")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderActions(w io.Writer, rows []actionRow, aliases []string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no actions configured"))
		return
	}
	headers := []string{"KEY", "GROUP", "OPERATION", "TYPE", "HANDLER"}
	cells := make([][]string, len(rows))
	for i, r := range rows {
		handler := r.Handler
		if r.Error != "" {
			handler = ui.RenderFail(ui.IconFail + " " + r.Error)
		} else if handler == "" {
			handler = ui.RenderWarn(ui.IconWarn + " none")
		}
		cells[i] = []string{r.Key, r.Group, r.Operation, r.Type, handler}
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, c := range row {
			if n := lipgloss.Width(c); n > widths[i] {
				widths[i] = n
			}
		}
	}
	pad := func(s string, n int) string { return s + strings.Repeat(" ", n-lipgloss.Width(s)) }

	var hdr []string
	for i, h := range headers {
		hdr = append(hdr, ui.CategoryStyle.Render(pad(h, widths[i])))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(hdr, "  "), " "))
	for _, row := range cells {
		var line []string
		for i, c := range row {
			line = append(line, pad(c, widths[i]))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " "))
	}
	if len(aliases) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.RenderMuted("aliases: "+strings.Join(aliases, ", ")))
	}
}
