// Package config holds the runner's own settings: where the assembly lives,
// who runs actions, how long subscribers may take. Values come from
// .arka/config.yaml, ARKA_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dir is the per-workspace settings directory.
const Dir = ".arka"

const (
	defaultAssembly  = "build/assembly.yaml"
	defaultProfile   = "default"
	defaultActor     = "runner"
	defaultMemoryDir = ".mem"
)

var v *viper.Viper

// Initialize sets up the viper singleton. Safe to call more than once; each
// call starts from scratch.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	if path := os.Getenv("ARKA_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else if path, err := FindConfigYAMLPath(); err == nil {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ARKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Aliases outside the ARKA_ prefix scheme.
	_ = v.BindEnv("actor", "ARKA_ACTOR", "ARKA_AGENT")
	_ = v.BindEnv("event-webhook", "ARKA_EVENT_WEBHOOK")

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("assembly", defaultAssembly)
	v.SetDefault("profile", defaultProfile)
	v.SetDefault("actor", defaultActor)
	v.SetDefault("root", "")
	v.SetDefault("memory.dir", defaultMemoryDir)
	v.SetDefault("hooks.timeout", "10s")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.retries", 2)
	v.SetDefault("event-webhook", "")
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
}

// ResetForTesting drops all settings so the next Initialize starts clean.
func ResetForTesting() {
	v = nil
}

// ConfigFileUsed returns the settings file that was read, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// FindConfigYAMLPath walks up from the working directory looking for
// .arka/config.yaml.
func FindConfigYAMLPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		path := filepath.Join(dir, Dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return "", fmt.Errorf("no %s/config.yaml found in current directory or parents", Dir)
}

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a value for the rest of the process. Flags use it.
func Set(key string, value interface{}) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// AllSettings returns every known key with its effective value.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}
