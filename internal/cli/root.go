package cli

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agent462/runpara/internal/config"
	"github.com/agent462/runpara/internal/executor"
	"github.com/agent462/runpara/internal/inventory"
	"github.com/agent462/runpara/internal/runpara"
	"github.com/agent462/runpara/internal/shell"
	"github.com/agent462/runpara/internal/ui/report"
)

// Version is reported by --version.
const Version = "v0.0.1"

type options struct {
	hosts      string
	groups     []string
	sshPattern string
	template   string
	configPath string
	output     string
	isolate    bool
	dryRun     bool
	noColor    bool
	logLevel   string
	verbose    bool
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the runpara command.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "runpara",
		Short: "Run a command on each target host in parallel",
		Long: `Run a command on each target host in parallel.

The command is read from stdin. For every target, the command template is
filled in and run through the shell; all targets run at once and a single
report is printed after the last one finishes.

The template can contain {host}, {command} and {quoted_command}. It can also
be set with the ` + config.EnvTemplate + ` environment variable or in the config file.
Default: ` + config.DefaultTemplate + `

Examples:
  # Check uptime on three hosts
  echo uptime | runpara -H "web-01 web-02 db-01"

  # Use a group from ~/.config/runpara/config.yaml
  runpara -g web <<< 'systemctl is-active nginx'

  # Every ssh_config alias starting with pi-, through docker exec instead of ssh
  runpara -S 'pi-*' -t 'docker exec {host} sh -c {quoted_command}' <<< 'df -h /'`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	f := cmd.Flags()
	f.StringVarP(&opts.hosts, "hosts", "H", "", "Target hosts, whitespace separated (env "+config.EnvHosts+")")
	f.StringArrayVarP(&opts.groups, "group", "g", nil, "Target group from the config file (repeatable)")
	f.StringVarP(&opts.sshPattern, "ssh-hosts", "S", "", "Add every ssh_config Host alias matching this glob")
	f.StringVarP(&opts.template, "template", "t", "", "Command template for each host (env "+config.EnvTemplate+")")
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file path (env "+config.EnvConfig+")")
	f.StringVarP(&opts.output, "output", "o", "", "Output format: text or json")
	f.BoolVar(&opts.isolate, "isolate-failures", false, "Report launch failures per host instead of aborting")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Print the command for each host without running it")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Shorthand for --log-level debug")
	f.BoolP("version", "V", false, "Show version and exit")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.verbose)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if cmd.Flags().Changed("template") {
		cfg.Defaults.Template = opts.template
	}
	if opts.output != "" {
		cfg.Defaults.Output = opts.output
	}
	if opts.isolate {
		cfg.Defaults.OnLaunchError = config.LaunchIsolate
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// An explicit -H "" is an empty target list, not a missing one.
	hostsSet := cmd.Flags().Changed("hosts")
	src := inventory.Sources{
		Groups:     opts.groups,
		SSHPattern: opts.sshPattern,
		Hosts:      opts.hosts,
		AllowEmpty: hostsSet,
	}
	if !hostsSet {
		src.Hosts = os.Getenv(config.EnvHosts)
	}
	if src.Empty() && !hostsSet {
		return cmd.Help()
	}

	targets, err := inventory.Resolve(cfg, src)
	if err != nil {
		return err
	}

	runner := shell.NewRunner(cfg.Defaults.Shell)
	log := logrus.NewEntry(logger)
	log.WithFields(logrus.Fields{
		"targets":  targets,
		"template": cfg.Defaults.Template,
		"shell":    runner.Shell(),
	}).Debug("resolved run")

	command, err := ReadCommand(cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	exec := executor.New(runner,
		executor.WithLogger(log.WithField("component", "executor")),
	)
	formatter := report.NewFormatter(cfg.Defaults.Output == config.OutputJSON, useColor(out, opts.noColor))
	reporter := runpara.New(exec, formatter, out,
		runpara.WithLogger(log.WithField("component", "runpara")),
		runpara.WithIsolatedFailures(cfg.Defaults.OnLaunchError == config.LaunchIsolate),
		runpara.WithDryRun(opts.dryRun),
	)

	return reporter.Run(cmd.Context(), targets, cfg.Defaults.Template, command)
}

// loadConfig loads the file named by path, then RUNPARA_CONFIG, then the
// default location. Only the default location may be missing.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func useColor(out io.Writer, disabled bool) bool {
	if disabled || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(out)
}
