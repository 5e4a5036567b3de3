// Package template builds per-target command lines from a command template.
//
// A template recognizes exactly three placeholders: {host}, {command} and
// {quoted_command}. Substitution is a single literal pass, so values that
// themselves contain placeholder text are never expanded again. Any other
// brace sequence, including unknown {names}, is left in place unchanged.
// A doubled brace is an escape: {{ and }} expand to a literal { and }, so
// {{host}} yields the text {host}.
package template

import (
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
)

// Recognized placeholder names.
const (
	Host          = "host"
	Command       = "command"
	QuotedCommand = "quoted_command"
)

// Default is the template used when none is configured.
const Default = "ssh {host} {quoted_command}"

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)
	escapes       = strings.NewReplacer("{{", "", "}}", "")
)

// Vars holds the values substituted for one target.
type Vars struct {
	Host          string
	Command       string
	QuotedCommand string
}

// Expand substitutes vars into tmpl.
func Expand(tmpl string, vars Vars) string {
	r := strings.NewReplacer(
		"{{", "{",
		"}}", "}",
		"{"+Host+"}", vars.Host,
		"{"+Command+"}", vars.Command,
		"{"+QuotedCommand+"}", vars.QuotedCommand,
	)
	return r.Replace(tmpl)
}

// Quote escapes s so a POSIX shell reads it back as exactly one word.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// Placeholders returns the recognized placeholders referenced by tmpl, in
// order of first appearance.
func Placeholders(tmpl string) []string {
	known, _ := scan(tmpl)
	return known
}

// Unknown returns brace-delimited names in tmpl that are not placeholders.
// They pass through Expand untouched.
func Unknown(tmpl string) []string {
	_, unknown := scan(tmpl)
	return unknown
}

func scan(tmpl string) (known, unknown []string) {
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(escapes.Replace(tmpl), -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case Host, Command, QuotedCommand:
			known = append(known, name)
		default:
			unknown = append(unknown, name)
		}
	}
	return known, unknown
}
