package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/action"
	"github.com/arkaos/arka/internal/engine"
	"github.com/arkaos/arka/internal/ui"
)

func newRunCmd() *cobra.Command {
	var (
		interactive bool
		render      bool
	)
	cmd := &cobra.Command{
		Use:   "run ACTION_KEY [JSON]",
		Short: "Execute one action",
		Long: `Execute one action from the assembly.

The input is a JSON object given as the second argument, or read from stdin
when the argument is "-". Events are written to stdout as NDJSON; the result
is written to stderr as a single JSON line.`,
		Example: `  arka run TICKET_CREATE '{"featureId":"FEAT-12","epicId":"EPIC-FEAT-12-03","usId":"US-EPIC-12-03-07","ticketId":"TCK-US-12-03-07-01","title":"export CSV"}'
  echo '{"featureId":"FEAT-1"}' | arka run FEATURE_READ -`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) > 1 {
				raw = args[1]
			}
			input, err := parseInput(raw, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			def, err := ws.rt.Table().Find(args[0])
			if err != nil {
				return err
			}
			if interactive {
				if !ui.IsInputTerminal() {
					warnError(cmd.ErrOrStderr(), "--interactive ignored: stdin is not a terminal")
				} else if err := promptMissing(def, input); err != nil {
					return err
				}
			}

			res, err := ws.rt.Run(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			if err := outputCompactJSON(cmd.ErrOrStderr(), res); err != nil {
				return err
			}
			if render && def.Operation == action.OpRead {
				if content, ok := res.Outputs["content"].(string); ok {
					fmt.Fprintln(cmd.ErrOrStderr(), ui.RenderMarkdown(content))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for missing identifiers and title")
	cmd.Flags().BoolVar(&render, "render", false, "Render markdown content returned by READ actions")
	return cmd
}

// parseInput decodes the action input. "-" reads stdin; an empty argument
// is an empty object.
func parseInput(raw string, stdin io.Reader) (map[string]any, error) {
	if raw == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading input from stdin: %w", err)
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &engine.InputError{Msg: fmt.Sprintf("invalid input JSON: %v", err)}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &engine.InputError{Msg: "input must be a JSON object"}
	}
	return obj, nil
}
