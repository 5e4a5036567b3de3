package report

import (
	"encoding/json"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/agent462/runpara/internal/executor"
)

// Mode is the layout used for a whole report.
type Mode int

const (
	// Compact prints one "<host> <output>" line per target.
	Compact Mode = iota
	// Expanded prints a "=== <host> ===" header followed by the output block.
	Expanded
)

func (m Mode) String() string {
	if m == Expanded {
		return "expanded"
	}
	return "compact"
}

var (
	colorCyan = lipgloss.Color("#00E5FF")
	colorRed  = lipgloss.Color("#FF4672")

	hostStyle       = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	failedHostStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

// Formatter renders collected results for terminal display.
type Formatter struct {
	JSON  bool
	Color bool
}

// NewFormatter creates a Formatter with the given options.
func NewFormatter(jsonOutput, color bool) *Formatter {
	return &Formatter{
		JSON:  jsonOutput,
		Color: color,
	}
}

// SelectMode picks the layout for the whole result set: a single multi-line
// output switches every target to Expanded.
func SelectMode(results []*executor.HostResult) Mode {
	for _, r := range results {
		if r.MultiLine() {
			return Expanded
		}
	}
	return Compact
}

// Render returns the full report, as JSON or text depending on f.JSON.
func (f *Formatter) Render(results []*executor.HostResult) ([]byte, error) {
	if f.JSON {
		out, err := f.FormatJSON(results)
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	}
	return []byte(f.Format(results)), nil
}

// Format renders results as text, in the order given.
func (f *Formatter) Format(results []*executor.HostResult) string {
	var b strings.Builder

	if SelectMode(results) == Expanded {
		for _, r := range results {
			b.WriteString(f.styleHost(r, "=== "+r.Host+" ==="))
			b.WriteString("\n")
			b.WriteString(r.Combined())
			b.WriteString("\n")
		}
		return b.String()
	}

	for _, r := range results {
		b.WriteString(f.styleHost(r, r.Host))
		b.WriteString(" ")
		b.WriteString(r.Combined())
		b.WriteString("\n")
	}
	return b.String()
}

// FormatJSON serializes results as a JSON array.
func (f *Formatter) FormatJSON(results []*executor.HostResult) ([]byte, error) {
	type jsonResult struct {
		Host     string `json:"host"`
		Command  string `json:"command"`
		Output   string `json:"output"`
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exit_code"`
		Duration string `json:"duration"`
		Error    string `json:"error,omitempty"`
	}

	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{
			Host:     r.Host,
			Command:  r.Command,
			Output:   r.Combined(),
			Stdout:   r.StdoutText(),
			Stderr:   r.StderrText(),
			ExitCode: r.ExitCode,
			Duration: r.Duration.String(),
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}

	return json.MarshalIndent(out, "", "  ")
}

// FormatPlan renders the command that would run for each target, one
// "<host> <command>" line per job.
func (f *Formatter) FormatPlan(jobs []executor.Job) string {
	var b strings.Builder
	for _, j := range jobs {
		b.WriteString(f.colorize(j.Host, hostStyle))
		b.WriteString(" ")
		b.WriteString(j.Command)
		b.WriteString("\n")
	}
	return b.String()
}

func (f *Formatter) styleHost(r *executor.HostResult, text string) string {
	if r.Err != nil || r.ExitCode != 0 {
		return f.colorize(text, failedHostStyle)
	}
	return f.colorize(text, hostStyle)
}

func (f *Formatter) colorize(text string, style lipgloss.Style) string {
	if !f.Color {
		return text
	}
	return style.Render(text)
}
