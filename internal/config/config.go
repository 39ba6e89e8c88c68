package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppName is used for the config directory and default file names.
const AppName = "gostt-relay"

// Config holds all application configuration.
type Config struct {
	Hotkey   HotkeyConfig  `yaml:"hotkey"`
	Audio    AudioConfig   `yaml:"audio"`
	Backend  BackendConfig `yaml:"backend"`
	Inject   InjectConfig  `yaml:"inject"`
	LockFile string        `yaml:"lock_file"`
	LogLevel string        `yaml:"log_level"`
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	ToggleKey   string   `yaml:"toggle_key"` // modifier key whose press+release toggles recording
	CancelKey   string   `yaml:"cancel_key"`
	Debounce    Duration `yaml:"debounce"`
	HookTimeout Duration `yaml:"hook_timeout"` // how long to wait for the OS hook to come up
}

// The backend only accepts 16 kHz mono s16le.
const (
	BackendSampleRate = 16000
	BackendChannels   = 1
)

// MaxRecording is the longest audio.max_duration allowed. Thirty minutes of
// backend-format audio still fits in one request frame.
const MaxRecording = 30 * time.Minute

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate  uint32   `yaml:"sample_rate"` // must be 16000
	Channels    uint32   `yaml:"channels"`    // must be 1
	MinDuration Duration `yaml:"min_duration"`
	MaxDuration Duration `yaml:"max_duration"` // audio past this is dropped
}

// BackendConfig describes the external transcription process.
type BackendConfig struct {
	Command       string   `yaml:"command"`
	Dir           string   `yaml:"dir"`
	Env           []string `yaml:"env"`
	SocketPath    string   `yaml:"socket_path"`
	StartAttempts int      `yaml:"start_attempts"`
	StartInterval Duration `yaml:"start_interval"`
	ProbeInterval Duration `yaml:"probe_interval"`
	StopTimeout   Duration `yaml:"stop_timeout"`
	MaxRestarts   int      `yaml:"max_restarts"`
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Method       string   `yaml:"method"` // "paste" or "type"
	RestoreDelay Duration `yaml:"restore_delay"`
	SettleDelay  Duration `yaml:"settle_delay"`
	PasteKeys    []string `yaml:"paste_keys"`
}

// Duration is a time.Duration that reads and writes as a Go duration
// string ("500ms", "1s") in YAML.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultPasteKeys returns the platform's standard paste chord as
// robotgo key names, main key first.
func DefaultPasteKeys() []string {
	if runtime.GOOS == "darwin" {
		return []string{"v", "cmd"}
	}
	return []string{"v", "ctrl"}
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			ToggleKey:   "alt",
			CancelKey:   "esc",
			Debounce:    Duration(time.Second),
			HookTimeout: Duration(2 * time.Second),
		},
		Audio: AudioConfig{
			SampleRate:  BackendSampleRate,
			Channels:    BackendChannels,
			MaxDuration: Duration(10 * time.Minute),
		},
		Backend: BackendConfig{
			Command:       "python3 asr_server.py --socket {socket}",
			SocketPath:    "/tmp/voice_asr_socket",
			StartAttempts: 60,
			StartInterval: Duration(500 * time.Millisecond),
			ProbeInterval: Duration(5 * time.Second),
			StopTimeout:   Duration(3 * time.Second),
			MaxRestarts:   3,
		},
		Inject: InjectConfig{
			Method:       "paste",
			RestoreDelay: Duration(500 * time.Millisecond),
			SettleDelay:  Duration(50 * time.Millisecond),
			PasteKeys:    DefaultPasteKeys(),
		},
		LockFile: filepath.Join(DefaultConfigDir(), AppName+".lock"),
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in path fields is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Backend.Dir = expandTilde(cfg.Backend.Dir)
	cfg.Backend.SocketPath = expandTilde(cfg.Backend.SocketPath)
	cfg.LockFile = expandTilde(cfg.LockFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Hotkey.ToggleKey == "" {
		return fmt.Errorf("hotkey.toggle_key must not be empty")
	}
	if c.Hotkey.CancelKey == "" {
		return fmt.Errorf("hotkey.cancel_key must not be empty")
	}
	if c.Hotkey.ToggleKey == c.Hotkey.CancelKey {
		return fmt.Errorf("hotkey.toggle_key and hotkey.cancel_key must differ, both are %q", c.Hotkey.ToggleKey)
	}
	if c.Hotkey.Debounce < 0 {
		return fmt.Errorf("hotkey.debounce must be >= 0")
	}

	if c.Audio.SampleRate != BackendSampleRate {
		return fmt.Errorf("audio.sample_rate must be %d, the backend's input rate, got %d", BackendSampleRate, c.Audio.SampleRate)
	}
	if c.Audio.Channels != BackendChannels {
		return fmt.Errorf("audio.channels must be %d, got %d", BackendChannels, c.Audio.Channels)
	}
	if c.Audio.MinDuration < 0 {
		return fmt.Errorf("audio.min_duration must be >= 0")
	}
	if c.Audio.MaxDuration <= 0 || c.Audio.MaxDuration.D() > MaxRecording {
		return fmt.Errorf("audio.max_duration must be between 0 and %s, got %s", MaxRecording, c.Audio.MaxDuration.D())
	}
	if c.Audio.MinDuration >= c.Audio.MaxDuration {
		return fmt.Errorf("audio.min_duration must be shorter than audio.max_duration")
	}

	if strings.TrimSpace(c.Backend.Command) == "" {
		return fmt.Errorf("backend.command must not be empty")
	}
	if c.Backend.SocketPath == "" {
		return fmt.Errorf("backend.socket_path must not be empty")
	}
	if c.Backend.StartAttempts <= 0 {
		return fmt.Errorf("backend.start_attempts must be > 0")
	}
	if c.Backend.StartInterval <= 0 {
		return fmt.Errorf("backend.start_interval must be > 0")
	}
	if c.Backend.ProbeInterval <= 0 {
		return fmt.Errorf("backend.probe_interval must be > 0")
	}
	if c.Backend.MaxRestarts < 0 {
		return fmt.Errorf("backend.max_restarts must be >= 0")
	}
	for _, kv := range c.Backend.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("backend.env entry %q must be KEY=VALUE", kv)
		}
	}

	switch c.Inject.Method {
	case "paste":
		if len(c.Inject.PasteKeys) == 0 {
			return fmt.Errorf("inject.paste_keys must not be empty when method is paste")
		}
	case "type":
	default:
		return fmt.Errorf("inject.method must be \"paste\" or \"type\", got %q", c.Inject.Method)
	}
	if c.Inject.RestoreDelay < 0 {
		return fmt.Errorf("inject.restore_delay must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level onto slog. Unknown values are info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# gostt-relay configuration
#
# hotkey.toggle_key: press and release alone to start/stop recording
# hotkey.cancel_key: discards the current recording
# backend.command:   {socket} is replaced with backend.socket_path
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" when a config
// already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	data := append([]byte(defaultHeader), body...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
