// Package inventory resolves the ordered list of targets a command is
// broadcast to.
package inventory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/kevinburke/ssh_config"

	"github.com/agent462/runpara/internal/config"
)

// ErrNoTargets is returned when the given sources resolve to no targets.
var ErrNoTargets = errors.New("no targets: provide hosts (-H), a group (-g) or an ssh_config pattern (-S)")

// Sources lists where targets come from. They are concatenated in the order
// Groups, SSHPattern, Hosts.
type Sources struct {
	Groups     []string // config group names
	SSHPattern string   // glob matched against ssh_config Host aliases
	Hosts      string   // whitespace-separated target list

	// AllowEmpty makes an empty result valid, for when the caller asked for
	// an explicitly empty target list.
	AllowEmpty bool
}

// Empty reports whether no source was given at all.
func (s Sources) Empty() bool {
	return len(s.Groups) == 0 && s.SSHPattern == "" && strings.TrimSpace(s.Hosts) == ""
}

// Resolve expands src into an ordered target list. Duplicates are kept:
// every occurrence of a target is executed independently.
func Resolve(cfg *config.Config, src Sources) ([]string, error) {
	var targets []string

	for _, name := range src.Groups {
		group, ok := cfg.Groups[name]
		if !ok {
			available := cfg.GroupNames()
			if len(available) == 0 {
				return nil, fmt.Errorf("group %q not found (no groups defined)", name)
			}
			return nil, fmt.Errorf("group %q not found (available: %s)", name, strings.Join(available, ", "))
		}
		targets = append(targets, group.Hosts...)
	}

	if src.SSHPattern != "" {
		hosts, err := sshConfigTargets(cfg.Defaults.SSHConfig, src.SSHPattern)
		if err != nil {
			return nil, err
		}
		targets = append(targets, hosts...)
	}

	targets = append(targets, ParseHosts(src.Hosts)...)

	if len(targets) == 0 && !src.AllowEmpty {
		return nil, ErrNoTargets
	}
	return targets, nil
}

// ParseHosts splits a whitespace-separated target list.
func ParseHosts(s string) []string {
	return strings.Fields(s)
}

func sshConfigTargets(configPath, pattern string) ([]string, error) {
	if configPath == "" {
		configPath = config.DefaultSSHConfigPath()
	}
	configPath = config.ExpandHome(configPath)

	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh config: %w", err)
	}
	defer f.Close()

	hosts, err := SSHConfigHosts(f, pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return hosts, nil
}

// SSHConfigHosts returns the concrete Host aliases declared in an ssh_config
// document that match the glob pattern, in file order. Wildcard and negated
// Host patterns are never returned.
func SSHConfigHosts(r io.Reader, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	cfg, err := ssh_config.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("parsing ssh config: %w", err)
	}

	seen := make(map[string]bool)
	var aliases []string
	for _, host := range cfg.Hosts {
		for _, p := range host.Patterns {
			alias := p.String()
			if alias == "" || strings.ContainsAny(alias, "*?!") || seen[alias] {
				continue
			}
			// A negated pattern never matches its own alias.
			if !host.Matches(alias) {
				continue
			}
			if ok, _ := path.Match(pattern, alias); ok {
				seen[alias] = true
				aliases = append(aliases, alias)
			}
		}
	}

	if len(aliases) == 0 {
		return nil, fmt.Errorf("no ssh_config hosts match %q", pattern)
	}
	return aliases, nil
}
