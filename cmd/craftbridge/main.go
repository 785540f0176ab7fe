// Package main is the craftbridge CLI: it runs one bridge process that reads commands on
// stdin and writes events on stdout.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/msageha/craftbridge/internal/config"
	"github.com/msageha/craftbridge/internal/daemon"
	"github.com/msageha/craftbridge/internal/logging"
	"github.com/msageha/craftbridge/internal/setup"
)

var version = "dev"

// exitError carries a non-zero process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			// Already logged by the bridge.
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(daemon.ExitError)
	}
}

// cliFlags are the overrides accepted on the command line.
type cliFlags struct {
	configPath string
	host       string
	port       int
	username   string
	auth       string
	driver     string
	logLevel   string
	logFormat  string
	httpAddr   string
	natsURL    string
	transcript string
	lockDir    string
}

func newRootCmd() *cobra.Command {
	f := &cliFlags{}

	root := &cobra.Command{
		Use:   "craftbridge [host] [port] [username]",
		Short: "Bridge a game session to newline-delimited JSON on stdin/stdout",
		Long: `craftbridge connects one bot account to a game server and exposes it as a
line protocol: one JSON command per line on stdin, one JSON event per line on stdout.
Diagnostics go to stderr.

Examples:
  # Connect with defaults (localhost:25565 as McFunBot)
  craftbridge

  # Positional host, port and username
  craftbridge play.example.net 25565 Digger

  # Config file plus a metrics endpoint
  craftbridge --config bridge.yaml --http-addr 127.0.0.1:9464`,
		Version:       version,
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, f, args)
		},
	}
	f.register(root)

	runCmd := &cobra.Command{
		Use:   "run [host] [port] [username]",
		Short: "Run the bridge (default command)",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, f, args)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config [host] [port] [username]",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts)
			if err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), cfg)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "craftbridge %s\n", version)
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config file (default " + setup.DefaultConfigFile + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := setup.DefaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := setup.WriteConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file, keeping a .bak copy")

	root.AddCommand(runCmd, configCmd, initCmd, versionCmd)
	return root
}

func (f *cliFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML config file (watched for logging.level changes)")
	pf.StringVar(&f.host, "host", "", "server host")
	pf.IntVar(&f.port, "port", 0, "server port")
	pf.StringVarP(&f.username, "username", "u", "", "bot account name")
	pf.StringVar(&f.auth, "auth", "", "auth mode")
	pf.StringVar(&f.driver, "driver", "", "session driver")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&f.logFormat, "log-format", "", "console or json")
	pf.StringVar(&f.httpAddr, "http-addr", "", "serve /health, /status and /metrics on this address")
	pf.StringVar(&f.natsURL, "nats-url", "", "mirror events to this NATS server")
	pf.StringVar(&f.transcript, "transcript", "", "append commands and events to this file")
	pf.StringVar(&f.lockDir, "lock-dir", "", "directory for the per-account lock file")
}

// options maps changed flags and positional arguments onto config keys. Positional
// arguments win over the matching flags.
func (f *cliFlags) options(cmd *cobra.Command, args []string) (config.Options, error) {
	overrides := map[string]any{}
	flags := cmd.Flags()
	set := func(name, key string, value any) {
		if flags.Changed(name) {
			overrides[key] = value
		}
	}
	set("host", "session.host", f.host)
	set("port", "session.port", f.port)
	set("username", "session.username", f.username)
	set("auth", "session.auth", f.auth)
	set("driver", "session.driver", f.driver)
	set("log-level", "logging.level", f.logLevel)
	set("log-format", "logging.format", f.logFormat)
	set("http-addr", "http.addr", f.httpAddr)
	set("nats-url", "mirror.nats_url", f.natsURL)
	set("transcript", "transcript.path", f.transcript)
	set("lock-dir", "lock.dir", f.lockDir)

	if len(args) > 0 {
		overrides["session.host"] = args[0]
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return config.Options{}, fmt.Errorf("invalid port %q", args[1])
		}
		overrides["session.port"] = port
	}
	if len(args) > 2 {
		overrides["session.username"] = args[2]
	}
	return config.Options{Path: f.configPath, Overrides: overrides}, nil
}

func runBridge(cmd *cobra.Command, f *cliFlags, args []string) error {
	opts, err := f.options(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	logger, level, err := logging.New(cfg.Logging, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	driver, err := daemon.NewDriver(cfg.Session)
	if err != nil {
		return err
	}
	d, err := daemon.New(daemon.Options{
		Config: cfg,
		Driver: driver,
		In:     cmd.InOrStdin(),
		Out:    cmd.OutOrStdout(),
		Logger: logger,
		Level:  level,
		Reload: opts,
	})
	if err != nil {
		return err
	}

	code, err := d.Run()
	if err != nil {
		logger.Error("bridge failed to start", zap.Error(err))
		return &exitError{code: code, err: err}
	}
	if code != daemon.ExitOK {
		return &exitError{code: code}
	}
	return nil
}
