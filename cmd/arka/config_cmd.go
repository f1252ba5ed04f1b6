package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/config"
	"github.com/arkaos/arka/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change runner settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := config.Current()
			w := cmd.OutOrStdout()
			if used := config.ConfigFileUsed(); used != "" {
				fmt.Fprintln(w, ui.RenderMuted("# "+used))
			}
			values := map[string]string{
				"assembly":        s.AssemblyPath(),
				"profile":         s.Profile,
				"actor":           s.Actor,
				"root":            s.Root,
				"memory.dir":      s.MemoryDir,
				"hooks.timeout":   s.HooksTimeout.String(),
				"webhook.timeout": s.WebhookTimeout.String(),
				"webhook.retries": fmt.Sprint(s.WebhookRetries),
				"event-webhook":   s.EventWebhook,
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%s: %s\n", ui.RenderAccent(k), values[k])
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Write a setting to .arka/config.yaml under the workspace root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.SetYamlConfig(config.Current().Root, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s = %s (%s)\n", ui.RenderPass(ui.IconPass), args[0], args[1], path)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
