package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Settings is the resolved view of the runner configuration.
type Settings struct {
	Assembly       string
	Profile        string
	Actor          string
	Root           string
	MemoryDir      string
	HooksTimeout   time.Duration
	WebhookTimeout time.Duration
	WebhookRetries int
	EventWebhook   string
}

// Current reads the effective settings. Out-of-range values fall back to
// their defaults with a warning. An empty root means the working directory.
func Current() Settings {
	s := Settings{
		Assembly:       GetString("assembly"),
		Profile:        GetString("profile"),
		Actor:          GetString("actor"),
		Root:           GetString("root"),
		MemoryDir:      GetString("memory.dir"),
		HooksTimeout:   positiveDuration("hooks.timeout", 10*time.Second),
		WebhookTimeout: positiveDuration("webhook.timeout", 10*time.Second),
		WebhookRetries: GetInt("webhook.retries"),
		EventWebhook:   GetString("event-webhook"),
	}
	if s.WebhookRetries < 0 {
		warn("invalid webhook.retries %d in config, using 2", s.WebhookRetries)
		s.WebhookRetries = 2
	}
	if s.Root == "" {
		if cwd, err := os.Getwd(); err == nil {
			s.Root = cwd
		}
	}
	if s.Profile == "" {
		s.Profile = defaultProfile
	}
	if s.Actor == "" {
		s.Actor = defaultActor
	}
	if s.MemoryDir == "" {
		s.MemoryDir = defaultMemoryDir
	}
	// A root given on the command line may carry its own settings file.
	if ConfigFileUsed() == "" {
		s.overlay(LoadLocalConfigWithEnv(filepath.Join(s.Root, Dir)))
	}
	return s
}

// overlay fills values still at their defaults from a workspace file.
func (s *Settings) overlay(lc *LocalConfig) {
	if lc.Assembly != "" && s.Assembly == defaultAssembly {
		s.Assembly = lc.Assembly
	}
	if lc.Profile != "" && s.Profile == defaultProfile {
		s.Profile = lc.Profile
	}
	if lc.Actor != "" && s.Actor == defaultActor {
		s.Actor = lc.Actor
	}
	if lc.Memory.Dir != "" && s.MemoryDir == defaultMemoryDir {
		s.MemoryDir = lc.Memory.Dir
	}
}

// AssemblyPath anchors the assembly at the root unless it is absolute.
func (s Settings) AssemblyPath() string {
	if filepath.IsAbs(s.Assembly) || s.Root == "" {
		return s.Assembly
	}
	return filepath.Join(s.Root, s.Assembly)
}

func positiveDuration(key string, def time.Duration) time.Duration {
	d := GetDuration(key)
	if d <= 0 {
		if raw := GetString(key); raw != "" {
			warn("invalid %s %q in config, using %s", key, raw, def)
		}
		return def
	}
	return d
}

func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ARKA-RUNNER] WARN: "+format+"\n", args...)
}
