// Command arka runs configured actions against an assembly: it performs
// the filesystem work, streams events as NDJSON on stdout, records an audit
// trail and prints the structured result on stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/config"
	"github.com/arkaos/arka/internal/debug"
	"github.com/arkaos/arka/internal/engine"
	"github.com/arkaos/arka/internal/telemetry"
)

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	assembly   string
	profile    string
	actor      string
	root       string
	configPath string
	verbose    bool
	quiet      bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	cmd := &cobra.Command{
		Use:           "arka",
		Short:         "arka - configuration-driven action runner",
		Long:          `Runs named actions declared in an assembly: resolves references, performs file operations, emits events and records what happened.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.configPath != "" {
				if err := os.Setenv("ARKA_CONFIG", flags.configPath); err != nil {
					return err
				}
			}
			if err := config.Initialize(); err != nil {
				return err
			}
			applyViperOverrides(cmd, flags)
			debug.SetVerbose(config.GetBool("verbose"))
			debug.SetQuiet(config.GetBool("quiet"))
			if used := config.ConfigFileUsed(); used != "" {
				debug.Logf("settings from %s\n", used)
			}
			if err := telemetry.Init(cmd.Context(), "arka", Version); err != nil {
				debug.Warnf("telemetry disabled: %v", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = telemetry.Shutdown(context.Background())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.assembly, "assembly", "", "Assembly file (default: $ARKA_ASSEMBLY or build/assembly.yaml)")
	pf.StringVar(&flags.profile, "profile", "", "Profile stamped on events (default: $ARKA_PROFILE or default)")
	pf.StringVar(&flags.actor, "actor", "", "Actor recorded in memory (default: $ARKA_AGENT or runner)")
	pf.StringVar(&flags.root, "root", "", "Workspace root (default: current directory)")
	pf.StringVar(&flags.configPath, "config", "", "Settings file (default: nearest .arka/config.yaml)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug output")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress warnings")

	cmd.AddCommand(
		newRunCmd(),
		newResolveCmd(),
		newActionsCmd(),
		newMemoryCmd(),
		newEmitCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// applyViperOverrides pushes explicitly set flags into the settings so
// every later read sees one merged view.
func applyViperOverrides(cmd *cobra.Command, flags rootFlags) {
	overrides := map[string]struct {
		flag  string
		value interface{}
	}{
		"assembly": {"assembly", flags.assembly},
		"profile":  {"profile", flags.profile},
		"actor":    {"actor", flags.actor},
		"root":     {"root", flags.root},
		"verbose":  {"verbose", flags.verbose},
		"quiet":    {"quiet", flags.quiet},
	}
	for key, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			config.Set(key, o.value)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(), os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command tree and maps the outcome to an exit status.
func execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return engine.ExitOK
	}
	printError(root.ErrOrStderr(), err)
	return engine.ExitCode(err)
}
