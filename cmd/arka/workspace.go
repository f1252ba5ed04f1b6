package main

import (
	"github.com/spf13/cobra"

	"github.com/arkaos/arka/internal/assembly"
	"github.com/arkaos/arka/internal/config"
	"github.com/arkaos/arka/internal/debug"
	"github.com/arkaos/arka/internal/engine"
	"github.com/arkaos/arka/internal/eventbus"
	"github.com/arkaos/arka/internal/memory"
)

// workspace is everything one invocation works against.
type workspace struct {
	settings config.Settings
	asm      *assembly.Assembly
	bus      *eventbus.Bus
	rt       *engine.Runtime
}

// loadAssembly reads the configured assembly.
func loadAssembly(s config.Settings) (*assembly.Assembly, error) {
	path := s.AssemblyPath()
	debug.Logf("loading assembly %s\n", path)
	return assembly.Load(path)
}

// openWorkspace loads the assembly and wires the bus and runtime. The
// event stream goes to the command's stdout.
func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	s := config.Current()
	asm, err := loadAssembly(s)
	if err != nil {
		return nil, err
	}
	bus, err := newBus(cmd, s, asm)
	if err != nil {
		return nil, err
	}
	rt, err := engine.New(asm, engine.Paths{Root: s.Root, Memory: s.MemoryDir},
		engine.WithActor(s.Actor),
		engine.WithProfile(s.Profile),
		engine.WithBus(bus),
	)
	if err != nil {
		return nil, err
	}
	return &workspace{settings: s, asm: asm, bus: bus, rt: rt}, nil
}

func newBus(cmd *cobra.Command, s config.Settings, asm *assembly.Assembly) (*eventbus.Bus, error) {
	defaults := eventbus.DefaultConfig()
	defaults.LocalTimeout = s.HooksTimeout
	defaults.WebhookTimeout = s.WebhookTimeout
	defaults.WebhookRetries = s.WebhookRetries
	cfg, err := eventbus.ConfigFromAssembly(asm, defaults)
	if err != nil {
		return nil, err
	}
	return eventbus.New(cfg,
		eventbus.WithRoot(s.Root),
		eventbus.WithProfile(s.Profile),
		eventbus.WithWebhookOverride(s.EventWebhook),
		eventbus.WithStdout(cmd.OutOrStdout()),
		eventbus.WithProcessOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	), nil
}

// recorder opens the memory store without needing an assembly.
func recorder() (*memory.Recorder, config.Settings) {
	s := config.Current()
	dir := engine.Paths{Root: s.Root}.Abs(s.MemoryDir)
	return memory.NewRecorder(dir), s
}
