package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-relay/internal/config"
)

type rootFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "gostt-relay",
		Short: "Hotkey dictation through an external recognition backend",
		Long: `gostt-relay listens for a global hotkey, records the microphone while it is
active, sends the recording to a local speech recognition process over a unix
socket and pastes the returned text into the focused application.`,
		Example: `  gostt-relay
  gostt-relay run --config ~/dictation.yaml
  gostt-relay probe
  gostt-relay send hello.wav`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file (default: ~/.config/gostt-relay/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "enable debug logging")

	cmd.AddCommand(newRunCmd(&flags))
	cmd.AddCommand(newProbeCmd(&flags))
	cmd.AddCommand(newSendCmd(&flags))
	cmd.AddCommand(newInitConfigCmd())

	return cmd
}

func execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(defaultToRun(root, args))
	return root.ExecuteContext(ctx)
}

// defaultToRun prepends "run" when args name no subcommand.
func defaultToRun(root *cobra.Command, args []string) []string {
	for _, arg := range args {
		switch {
		case arg == "--":
			return append([]string{"run"}, args...)
		case arg == "--help" || arg == "-h":
			return args
		case strings.HasPrefix(arg, "-"):
			continue
		case isSubcommand(root, arg):
			return args
		default:
			return append([]string{"run"}, args...)
		}
	}
	return append([]string{"run"}, args...)
}

func isSubcommand(cmd *cobra.Command, name string) bool {
	switch name {
	case "help", "completion", "__complete", "__completeNoDesc":
		return true
	}
	for _, c := range cmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}
	return false
}

// load reads and validates the config, then installs the process logger at
// the configured level.
func (f *rootFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, source, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if f.debug {
		level = slog.LevelDebug
	}
	setupLogging(cmd.ErrOrStderr(), level)
	slog.Debug("[Main] config loaded", "source", source)
	return cfg, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. It also reports
// where the config came from.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return config.Default(), "defaults", nil
}

func setupLogging(w io.Writer, level slog.Level) {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})))
}
