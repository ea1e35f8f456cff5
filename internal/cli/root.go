// Package cli implements the riskpulse command line: serve, simulate,
// validate and version.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/version"
	"github.com/riskpulse/riskpulse/internal/webui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Global flags
var (
	configDirFlag string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "riskpulse",
	Short: "Real-time metrics monitor with threshold alerting",
	Long: `riskpulse samples a fixed set of metrics on an interval, keeps a bounded
history, evaluates threshold rules against every sample and routes the
resulting alerts to notification channels.

Examples:
  riskpulse serve --config ./config
  riskpulse simulate --ticks 300 --out session.json
  riskpulse validate --probe`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDirFlag, "config", "c", "config", "Configuration directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Output goes to out, the web UI log
// buffer when one is given, and a rotating file when log.file is set. The
// returned closer releases the file.
func newLogger(out io.Writer, cfg config.LogConfig, levelOverride string, buffer *webui.LogBuffer) (zerolog.Logger, io.Closer, error) {
	name := cfg.Level
	if levelOverride != "" {
		name = levelOverride
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	writers := []io.Writer{out}
	if buffer != nil {
		writers = append(writers, buffer)
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, file)
		closer = file
	}

	info := version.Get()
	logger := zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("version", info.Version).
		Str("commit", info.Commit).
		Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
