// Package app wires the command line surface to the run coordinator.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"exchange-test-runner/internal/config"
	"exchange-test-runner/internal/executor"
	"exchange-test-runner/internal/language"
	ilogger "exchange-test-runner/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const version = "1.0.0"

// Exit code for configuration errors, distinct from test failures (1).
const configErrorExit = 2

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

type cliOptions struct {
	JS      bool
	PHP     bool
	Python2 bool
	Python3 bool

	Concurrency   int
	Timeout       int
	FlushDelay    int
	HardKill      bool
	JSONReport    bool
	ExchangesFile string
	WorkDir       string

	Cleanup    bool
	Version    bool
	ConfigFile string
}

var (
	exitFn           = os.Exit
	stdout io.Writer = os.Stdout
	sleep            = time.Sleep
)

func Main() {
	Run()
}

// Run is the program entrypoint for cmd/exchangetest/main.go.
func Run() {
	exitFn(run(os.Args[1:]))
}

// run executes the root command. A panic escaping the concurrency core means
// its state can no longer be trusted, so it aborts the whole run here rather
// than being converted into a per-unit outcome.
func run(argv []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "FATAL: internal error: %v\n", r)
			logError(fmt.Sprintf("internal error: %v", r))
			code = 1
		}
	}()

	cmd := newRootCommand()
	cmd.SetArgs(argv)
	if err := cmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	name := ilogger.ToolName
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s [flags] [<exchanges>...] [<category>/<symbol>]", name),
		Short:         "Run per-exchange integration tests across language runners",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Printf("%s version %s\n", name, version)
				return nil
			}
			if opts.Cleanup {
				code := runCleanupMode()
				if code == 0 {
					return nil
				}
				return exitError{code: code}
			}

			exitCode := runWithLoggerAndCleanup(func() int {
				v, err := config.NewViper(opts.ConfigFile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
					logError(err.Error())
					return configErrorExit
				}

				cfg, err := buildRunConfig(cmd, args, opts, v)
				if err != nil {
					fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
					logError(err.Error())
					if errors.Is(err, config.ErrNoTargets) {
						return configErrorExit
					}
					return 1
				}

				logInfo(fmt.Sprintf("Parsed args: targets=%d, filter=%s, languages=%v", len(cfg.Targets), cfg.Filter, cfg.Languages))
				return runTests(cmd.Context(), cfg)
			})

			if exitCode == 0 {
				return nil
			}
			return exitError{code: exitCode}
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	addRootFlags(cmd.Flags(), opts)
	cmd.AddCommand(newVersionCommand(name), newCleanupCommand())

	return cmd
}

func addRootFlags(fs *pflag.FlagSet, opts *cliOptions) {
	fs.StringVar(&opts.ConfigFile, "config", "", "Config file path (default: $HOME/.exchangetest/config.*)")
	fs.BoolVarP(&opts.Version, "version", "v", false, "Print version and exit")
	fs.BoolVar(&opts.Cleanup, "cleanup", false, "Clean up old logs and exit")

	fs.BoolVar(&opts.JS, "js", false, "Run only the JavaScript tests")
	fs.BoolVar(&opts.PHP, "php", false, "Run only the PHP tests")
	fs.BoolVar(&opts.Python2, "python2", false, "Run only the Python 2 tests")
	fs.BoolVar(&opts.Python3, "python3", false, "Run only the Python 3 tests")

	fs.IntVar(&opts.Concurrency, "concurrency", 0, "Max exchanges tested at once (also via EXCHANGETEST_CONCURRENCY)")
	fs.IntVar(&opts.Timeout, "timeout", 0, "Per-exchange timeout in seconds (also via EXCHANGETEST_TIMEOUT)")
	fs.IntVar(&opts.FlushDelay, "flush-delay", 0, "Seconds to wait before a nonzero exit so buffered output flushes")
	fs.BoolVar(&opts.HardKill, "hard-kill", false, "Terminate subprocesses of timed-out exchanges instead of leaking them")
	fs.BoolVar(&opts.JSONReport, "json", false, "Emit the final report as JSON")
	fs.StringVar(&opts.ExchangesFile, "exchanges-file", "", "Path to the exported exchange list (default: exchanges.json)")
	fs.StringVar(&opts.WorkDir, "workdir", "", "Working directory for test runners (default: current directory)")
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print version and exit",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s version %s\n", name, version)
			return nil
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "cleanup",
		Short:         "Clean up old logs and exit",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code := runCleanupMode()
			if code == 0 {
				return nil
			}
			return exitError{code: code}
		},
	}
}

func runWithLoggerAndCleanup(fn func() int) (exitCode int) {
	logger, err := NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to initialize logger: %v\n", err)
		return 1
	}
	setLogger(logger)

	defer func() {
		logger := activeLogger()
		if logger != nil {
			logger.Flush()
		}
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: failed to close logger: %v\n", err)
		}
		if logger == nil {
			return
		}

		if exitCode != 0 {
			if entries := logger.ExtractRecentErrors(10); len(entries) > 0 {
				fmt.Fprintln(os.Stderr, "\n=== Recent Errors ===")
				for _, entry := range entries {
					fmt.Fprintln(os.Stderr, entry)
				}
				fmt.Fprintf(os.Stderr, "Log file: %s (deleted)\n", logger.Path())
			}
		}
		_ = logger.RemoveLogFile()
	}()

	// Clean up stale logs from previous runs.
	scheduleStartupCleanup()

	return fn()
}

// buildRunConfig resolves the full run configuration: flags win over
// environment and config file, which win over defaults.
func buildRunConfig(cmd *cobra.Command, args []string, opts *cliOptions, v *viper.Viper) (*config.Config, error) {
	cfg := &config.Config{
		Filter:      "all",
		Concurrency: config.ResolveConcurrency(v),
		Timeout:     config.ResolveTimeout(v),
		FlushDelay:  config.ResolveFlushDelay(v),
		WorkDir:     opts.WorkDir,
	}

	if cmd.Flags().Changed("concurrency") {
		if opts.Concurrency <= 0 {
			return nil, fmt.Errorf("--concurrency must be positive")
		}
		cfg.Concurrency = opts.Concurrency
	}
	if cmd.Flags().Changed("timeout") {
		if opts.Timeout <= 0 {
			return nil, fmt.Errorf("--timeout must be positive")
		}
		cfg.Timeout = time.Duration(opts.Timeout) * time.Second
	}
	if cmd.Flags().Changed("flush-delay") {
		if opts.FlushDelay < 0 {
			return nil, fmt.Errorf("--flush-delay must not be negative")
		}
		cfg.FlushDelay = time.Duration(opts.FlushDelay) * time.Second
	}

	if cmd.Flags().Changed("hard-kill") {
		cfg.HardKill = opts.HardKill
	} else {
		cfg.HardKill = v.GetBool("hard-kill")
	}
	if cmd.Flags().Changed("json") {
		cfg.JSONReport = opts.JSONReport
	} else {
		cfg.JSONReport = v.GetBool("json")
	}

	cfg.ExchangesFile = strings.TrimSpace(opts.ExchangesFile)
	if cfg.ExchangesFile == "" {
		cfg.ExchangesFile = strings.TrimSpace(v.GetString("exchanges-file"))
	}

	// An argument shaped like category/symbol is the test filter; everything
	// else names an exchange.
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if strings.Contains(arg, "/") {
			cfg.Filter = arg
			continue
		}
		cfg.Targets = append(cfg.Targets, arg)
	}

	if len(cfg.Targets) == 0 {
		targets, err := config.LoadTargets(cfg.ExchangesFile)
		if err != nil {
			return nil, err
		}
		cfg.Targets = targets
	}

	cfg.Languages = selectedLanguages(opts)
	if _, err := language.Select(cfg.Languages); err != nil {
		return nil, err
	}

	return cfg, nil
}

// selectedLanguages maps the boolean language flags to selection keys, in the
// registry's fixed order. No flags set means the full set.
func selectedLanguages(opts *cliOptions) []string {
	enabled := map[string]bool{
		"js":      opts.JS,
		"php":     opts.PHP,
		"python2": opts.Python2,
		"python3": opts.Python3,
	}
	var keys []string
	for _, key := range language.Keys() {
		if enabled[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

func runTests(ctx context.Context, cfg *config.Config) int {
	if ctx == nil {
		ctx = context.Background()
	}
	summary := executor.RunAll(ctx, cfg.Targets, cfg.Filter, cfg.Languages, executor.Options{
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.Timeout,
		HardKill:    cfg.HardKill,
		WorkDir:     cfg.WorkDir,
		Out:         stdout,
	})

	if cfg.JSONReport {
		report, err := renderJSONReport(summary)
		if err != nil {
			logError("render JSON report: " + err.Error())
		} else {
			fmt.Fprintln(stdout, report)
		}
	}

	code := summary.ExitCode()
	if code != 0 && cfg.FlushDelay > 0 {
		// Give buffered output a chance to reach external log capture.
		sleep(cfg.FlushDelay)
	}
	return code
}
