package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/clients"
	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
	"github.com/ajitpratap0/deltashare/pkg/observability"
	"github.com/ajitpratap0/deltashare/pkg/sharing"
)

// envPrefix namespaces environment overrides, e.g. DELTASHARE_PROFILE
const envPrefix = "DELTASHARE"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are resolved
type app struct {
	v        *viper.Viper
	cfg      *config.ClientConfig
	log      *zap.Logger
	shutdown observability.ShutdownFunc
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "deltashare",
		Short: "Delta Sharing client",
		Long: `deltashare lists the shares, schemas and tables a profile can access and
reads shared tables as newline-delimited JSON.

Every flag can also be set through a DELTASHARE_* environment variable,
e.g. DELTASHARE_PROFILE or DELTASHARE_NUM_RETRIES.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("profile", "", "Path to the sharing profile file")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.Bool("trace", false, "Export spans to stderr")
	flags.Duration("timeout", 30*time.Second, "Timeout of a single request to the sharing server")
	flags.Int("num-retries", 3, "Retries after the first attempt of a request")
	flags.Int("max-concurrency", 8, "Maximum concurrent data file reads")
	flags.Int("max-results", 0, "Page size hint sent with listings (0 = server default)")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		versionCmd(),
		listSharesCmd(a),
		listSchemasCmd(a),
		listTablesCmd(a),
		listAllTablesCmd(a),
		metadataCmd(a),
		tableVersionCmd(a),
		loadCmd(a),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// skip client setup
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deltashare v%s\n", clients.Version)
			fmt.Fprintf(out, "User agent: %s\n", clients.UserAgent())
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// setup resolves the configuration: defaults, then the config file, then
// flags and environment variables that were explicitly set.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if a.v.IsSet("profile") {
		cfg.Profile = a.v.GetString("profile")
	}
	if a.v.IsSet("timeout") {
		cfg.HTTP.Timeout = a.v.GetDuration("timeout")
	}
	if a.v.IsSet("num-retries") {
		cfg.HTTP.NumRetries = a.v.GetInt("num-retries")
	}
	if a.v.IsSet("max-concurrency") {
		cfg.Reader.MaxConcurrency = a.v.GetInt("max-concurrency")
	}
	if a.v.IsSet("max-results") {
		cfg.HTTP.MaxResults = a.v.GetInt("max-results")
	}
	if a.v.IsSet("log-level") || cfg.Logging.Level == "" {
		cfg.Logging.Level = a.v.GetString("log-level")
	}
	if a.v.GetBool("trace") {
		cfg.Observability.EnableTracing = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create logger")
	}
	a.cfg = cfg
	a.log = log.With(zap.String("component", "deltashare-cli"), zap.String("command", cmd.Name()))

	if cfg.Observability.EnableTracing {
		tc := observability.DefaultTracingConfig()
		tc.ServiceName = cfg.Observability.ServiceName
		tc.ServiceVersion = clients.Version
		tc.Writer = cmd.ErrOrStderr()
		shutdown, err := observability.InitTracing(tc)
		if err != nil {
			return err
		}
		a.shutdown = shutdown
	}
	return nil
}

func (a *app) teardown() error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.shutdown(ctx)
}

// client opens a sharing client for the configured profile
func (a *app) client() (*sharing.Client, error) {
	if a.cfg.Profile == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "no profile given, use --profile or DELTASHARE_PROFILE")
	}
	return sharing.NewClientFromConfig(a.cfg, a.log)
}
