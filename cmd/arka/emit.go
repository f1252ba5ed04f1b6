package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/config"
	"github.com/arkaos/arka/internal/engine"
	"github.com/arkaos/arka/internal/eventbus"
	"github.com/arkaos/arka/internal/resource"
	"github.com/arkaos/arka/internal/ui"
)

func newEmitCmd() *cobra.Command {
	var (
		payload string
		source  string
		scope   string
	)
	cmd := &cobra.Command{
		Use:   "emit EVENT",
		Short: "Dispatch an event through the bus",
		Long: `Dispatch an arbitrary event through the configured bus: alias
canonicalization, the stdout stream and every matching subscriber. Useful
for testing subscriber scripts and webhooks.`,
		Example: `  arka emit TICKET_CREATED --scope '{"ticketId":"TCK-1"}' --payload '{"title":"x"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := parseInput(payload, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var sc resource.Scope
			if scope != "" {
				if err := json.Unmarshal([]byte(scope), &sc); err != nil {
					return &engine.InputError{Msg: fmt.Sprintf("--scope: %v", err)}
				}
			}
			s := config.Current()
			asm, err := loadAssembly(s)
			if err != nil {
				return err
			}
			bus, err := newBus(cmd, s, asm)
			if err != nil {
				return err
			}
			ev, results, err := bus.Dispatch(cmd.Context(), bus.NewEvent(args[0], source, sc, details))
			if err != nil {
				return err
			}
			w := cmd.ErrOrStderr()
			if ev.Name != args[0] {
				fmt.Fprintf(w, "%s %s\n", ui.RenderMuted(args[0]+" →"), ev.Name)
			}
			for _, r := range results {
				fmt.Fprintf(w, "%s  %s %s  %s\n", ui.RenderStatus(string(r.Status)), r.Using, r.Target, ui.RenderMuted(r.Duration.String()))
			}
			if failed := eventbus.Failed(results); len(failed) > 0 {
				warnError(w, "%d of %d deliveries failed", len(failed), len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Event details as a JSON object")
	cmd.Flags().StringVar(&source, "source", "ARKA-RUNNER", "source_brick stamped on the event")
	cmd.Flags().StringVar(&scope, "scope", "", "Event scope as a JSON object")
	return cmd
}
