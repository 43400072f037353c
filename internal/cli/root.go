package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/vsptd/internal/config"
	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/logging"
	"github.com/roach88/vsptd/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigFile  string
	LogFile     string
	MetricsFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vsptd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vsptd",
		Short: "vsptd - rule execution over triplets",
		Long: `Evaluate ЕСЛИ <condition> ТО <action>; rules against a pool of triplets.

Actions find, insert or delete rows in an agent's SQLite store. Table and
column names come from a metadata store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also write JSON logs to this file (rotated)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// session is the per-command runtime built from global flags.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	path    string
	closer  io.Closer
}

// open loads configuration and builds the logger and metrics.
// Flags override the config file: --verbose forces debug, --log-file
// replaces logger.log_file.
func (o *RootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Verbose {
		cfg.Logger.Level = "debug"
	}
	if o.LogFile != "" {
		cfg.Logger.LogFile = o.LogFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger, closer := logging.New(cfg.Logger, cmd.ErrOrStderr())
	return &session{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		path:    o.MetricsFile,
		closer:  closer,
	}, nil
}

// engine creates an engine configured from the session.
func (s *session) engine(extra ...engine.Option) (*engine.Engine, error) {
	opts, err := engine.FromConfig(s.cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	opts = append(opts, engine.WithLogger(s.logger), engine.WithMetrics(s.metrics))
	e, err := engine.New(append(opts, extra...)...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	return e, nil
}

// Close writes the metrics file, if requested, and closes the log file.
func (s *session) Close() error {
	var err error
	if s.path != "" {
		if werr := s.metrics.WriteTextfile(s.path); werr != nil {
			s.logger.Error("failed to write metrics", "path", s.path, "error", werr)
			err = werr
		}
	}
	if cerr := s.closer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
