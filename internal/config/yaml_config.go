package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Keys lists the settings `arka config set` accepts.
var Keys = map[string]bool{
	"assembly":        true,
	"profile":         true,
	"actor":           true,
	"root":            true,
	"memory.dir":      true,
	"hooks.timeout":   true,
	"webhook.timeout": true,
	"webhook.retries": true,
	"event-webhook":   true,
}

// KnownKeys returns Keys sorted.
func KnownKeys() []string {
	out := make([]string, 0, len(Keys))
	for k := range Keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetYamlConfig writes key into <root>/.arka/config.yaml, creating the file
// when needed. Existing (possibly commented-out) top-level lines for the key
// are updated in place.
func SetYamlConfig(root, key, value string) (string, error) {
	if !Keys[key] {
		return "", fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(KnownKeys(), ", "))
	}
	configPath := filepath.Join(root, Dir, "config.yaml")
	content, err := os.ReadFile(configPath) //nolint:gosec // path built from the workspace root
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read config.yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", Dir, err)
	}
	updated := updateYamlKey(string(content), key, value)
	if err := os.WriteFile(configPath, []byte(updated), 0o600); err != nil {
		return "", fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return configPath, nil
}

// updateYamlKey rewrites the line for key (commented or not), or appends it.
// Dotted keys are written flat; viper reads them as nested.
func updateYamlKey(content, key, value string) string {
	newLine := fmt.Sprintf("%s: %s", key, formatYamlValue(value))
	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if m := keyPattern.FindStringSubmatch(line); m != nil && !found {
			result = append(result, m[1]+newLine)
			found = true
			continue
		}
		result = append(result, line)
	}
	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}
	return strings.Join(result, "\n") + "\n"
}

func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) || isDuration(value) {
		return value
	}
	if needsQuoting(value) {
		return fmt.Sprintf("%q", value)
	}
	return value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch s[len(s)-1] {
	case 's', 'm', 'h':
		return isNumeric(s[:len(s)-1])
	}
	return false
}

func needsQuoting(s string) bool {
	if strings.ContainsAny(s, ":#[]{},&*!|>'\"%@`") {
		return true
	}
	return strings.TrimSpace(s) != s
}
