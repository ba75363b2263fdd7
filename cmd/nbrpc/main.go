package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xizhibei/go-stdio-rpc/internal/config"
)

var version = "0.1.0"

type cli struct {
	v          *viper.Viper
	configPath string
	app        *config.App
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes the command line and returns the exit code. Errors raised
// before the configured logger is installed go to stderr.
func run(args []string, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.ReplaceGlobals(newFallbackLogger(stderr))
	defer func() { _ = zap.L().Sync() }()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if debug, _ := root.PersistentFlags().GetBool("debug"); debug {
			zap.S().Errorf("nbrpc: %+v", err)
		} else {
			zap.S().Errorf("nbrpc: %v", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "nbrpc",
		Short:         "Drive a notebook MCP server over stdio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := config.Load(c.v, c.configPath)
			if err != nil {
				return err
			}
			c.app = app
			return setupLogger(app)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (yaml, json or toml)")
	flags.Bool("debug", false, "development logging at debug level")
	flags.String("log-level", "info", "log level")
	flags.Bool("metrics", false, "print exchange metrics in Prometheus text format on exit")
	flags.String("transcript", "", "save the session transcript to this path (.gz, .zz, .br compress)")
	flags.String("exe", "", "peer executable")
	flags.String("tool", "", "tool to call")
	flags.String("args", "", "tool arguments as a JSON object")
	flags.StringSlice("env", nil, "KEY=VALUE override for the peer environment (repeatable)")
	flags.Duration("read-timeout", 0, "bound on each response read")

	bind(c.v, flags.Lookup("debug"), "debug")
	bind(c.v, flags.Lookup("log-level"), "log_level")
	bind(c.v, flags.Lookup("metrics"), "metrics")
	bind(c.v, flags.Lookup("transcript"), "session.transcript_path")
	bind(c.v, flags.Lookup("exe"), "session.executable_path")
	bind(c.v, flags.Lookup("tool"), "session.tool_name")
	bind(c.v, flags.Lookup("args"), "tool_arguments")
	bind(c.v, flags.Lookup("env"), "env")
	bind(c.v, flags.Lookup("read-timeout"), "session.read_timeout")

	root.AddCommand(
		newHandshakeCmd(c),
		newOverviewCmd(c),
		newFixLinksCmd(c),
		newFixTemplateCmd(c),
		newSpliceCmd(c),
	)
	return root
}

func bind(v *viper.Viper, flag *pflag.Flag, key string) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(errors.Wrapf(err, "bind flag %s", key))
	}
}

func setupLogger(app *config.App) error {
	var (
		log *zap.Logger
		err error
	)
	if app.Debug {
		log, err = zap.NewDevelopment()
	} else {
		level, perr := zapcore.ParseLevel(app.LogLevel)
		if perr != nil {
			return errors.Wrapf(perr, "log level %q", app.LogLevel)
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		log, err = cfg.Build()
	}
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	zap.ReplaceGlobals(log)
	return nil
}

func newFallbackLogger(w io.Writer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), zapcore.InfoLevel)
	return zap.New(core)
}
