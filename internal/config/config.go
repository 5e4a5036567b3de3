package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by the CLI.
const (
	EnvTemplate = "RUNPARA_TEMPLATE"
	EnvHosts    = "RUNPARA_HOSTS"
	EnvConfig   = "RUNPARA_CONFIG"
)

// Output modes.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Launch error policies.
const (
	LaunchAbort   = "abort"
	LaunchIsolate = "isolate"
)

// DefaultTemplate runs the command on each target over ssh.
const DefaultTemplate = "ssh {host} {quoted_command}"

// Config represents the top-level runpara configuration.
type Config struct {
	Groups   map[string]Group `yaml:"groups"`
	Defaults Defaults         `yaml:"defaults"`
}

// Group defines a named, ordered list of targets.
type Group struct {
	Description string   `yaml:"description,omitempty"`
	Hosts       []string `yaml:"hosts"`
}

// Defaults holds default settings.
type Defaults struct {
	Template      string   `yaml:"template"`
	Shell         []string `yaml:"shell"`
	Output        string   `yaml:"output"`          // "text" or "json"
	OnLaunchError string   `yaml:"on_launch_error"` // "abort" or "isolate"
	SSHConfig     string   `yaml:"ssh_config,omitempty"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Groups: make(map[string]Group),
		Defaults: Defaults{
			Template:      DefaultTemplate,
			Shell:         []string{"/bin/sh", "-c"},
			Output:        OutputText,
			OnLaunchError: LaunchAbort,
		},
	}
}

// DefaultConfigPath returns the default config file path.
// Respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir != "" {
		return filepath.Join(configDir, "runpara", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "runpara", "config.yaml")
}

// DefaultSSHConfigPath returns ~/.ssh/config, or "" if the home directory
// cannot be determined.
func DefaultSSHConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "config")
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Groups == nil {
		cfg.Groups = make(map[string]Group)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the config from the default path (~/.config/runpara/config.yaml).
// If the file does not exist, it returns the default config.
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ApplyEnv overrides config values with environment variables, using
// lookup (normally os.LookupEnv). Only the template is configurable this way;
// RUNPARA_HOSTS is a target source and is read by the CLI.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvTemplate); ok && v != "" {
		c.Defaults.Template = v
	}
}

// GroupNames returns the configured group names in sorted order.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Defaults.Template) == "" {
		return fmt.Errorf("template must not be empty")
	}

	if len(c.Defaults.Shell) == 0 || c.Defaults.Shell[0] == "" {
		return fmt.Errorf("shell must name an interpreter, e.g. [/bin/sh, -c]")
	}

	validOutputModes := map[string]bool{OutputText: true, OutputJSON: true}
	if !validOutputModes[c.Defaults.Output] {
		return fmt.Errorf("invalid output mode %q, must be one of: text, json", c.Defaults.Output)
	}

	validPolicies := map[string]bool{LaunchAbort: true, LaunchIsolate: true}
	if !validPolicies[c.Defaults.OnLaunchError] {
		return fmt.Errorf("invalid on_launch_error %q, must be one of: abort, isolate", c.Defaults.OnLaunchError)
	}

	nameRe := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	for name, group := range c.Groups {
		if !nameRe.MatchString(name) {
			return fmt.Errorf("group name %q must match [a-zA-Z0-9_-]+", name)
		}
		if len(group.Hosts) == 0 {
			return fmt.Errorf("group %q has no hosts", name)
		}
		for i, h := range group.Hosts {
			if strings.TrimSpace(h) == "" || len(strings.Fields(h)) != 1 {
				return fmt.Errorf("group %q host %d (%q) must be a single non-empty word", name, i, h)
			}
		}
	}

	return nil
}

// ExpandHome expands a leading ~/ to the user's home directory.
// Paths like ~otheruser/... are returned unchanged since we cannot
// reliably resolve other users' home directories.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") && path != "~" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
