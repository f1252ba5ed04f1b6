package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml read directly from a workspace,
// bypassing the viper singleton. Useful before Initialize runs, or for a
// workspace other than the one viper was initialized from.
type LocalConfig struct {
	Assembly string `yaml:"assembly"`
	Profile  string `yaml:"profile"`
	Actor    string `yaml:"actor"`
	Memory   struct {
		Dir string `yaml:"dir"`
	} `yaml:"memory"`
}

// LoadLocalConfig reads <dir>/config.yaml, where dir is a .arka directory.
// Returns an empty LocalConfig (not nil) if the file doesn't exist or can't
// be parsed.
func LoadLocalConfig(dir string) *LocalConfig {
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml")) // #nosec G304 - settings path from caller
	if err != nil {
		return &LocalConfig{}
	}
	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// LoadLocalConfigWithEnv is LoadLocalConfig with ARKA_PROFILE and
// ARKA_AGENT/ARKA_ACTOR applied on top.
func LoadLocalConfigWithEnv(dir string) *LocalConfig {
	cfg := LoadLocalConfig(dir)
	if p := os.Getenv("ARKA_PROFILE"); p != "" {
		cfg.Profile = p
	}
	for _, name := range []string{"ARKA_ACTOR", "ARKA_AGENT"} {
		if a := os.Getenv(name); a != "" {
			cfg.Actor = a
			break
		}
	}
	return cfg
}
