// Package config loads the meetjoin configuration file. The key names follow
// the config.json format earlier versions of the bot used, so existing files
// keep working.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPollInterval    = 10
	DefaultLeaveCheckEvery = 5
	DefaultBridgeURL       = "ws://127.0.0.1:9333/agent"
	DefaultOBSURL          = "ws://localhost:4455"

	RecorderOBS  = "obs"
	RecorderNone = "none"
)

// Config is the immutable startup snapshot of all settings.
type Config struct {
	PollIntervalSeconds   int            // check_interval
	PauseSearch           bool           // pause_search: no meeting search while in a session
	AutoLeaveAfterMinutes float64        // auto_leave_after_min, 0 disables
	LeaveIfLast           bool           // leave_if_last
	LeaveThreshold        LeaveThreshold // leave_threshold_number, "" = default rule
	RunAtTime             string         // run_at_time, "HH:MM" or ""
	LeaveCheckEvery       int            // leave_check_every, in poll cycles

	Bridge   BridgeConfig
	Recorder RecorderConfig

	MetricsAddr string // metrics_addr, "" disables the /metrics listener
	StateDir    string // state_dir

	// Path is the file the config was read from, empty when defaults only.
	Path string
}

// BridgeConfig locates the agent running inside the chat web page.
type BridgeConfig struct {
	URL                  string
	Token                string
	ActionTimeoutSeconds int
	ReadyTimeoutSeconds  int
}

// RecorderConfig selects the recording backend.
type RecorderConfig struct {
	Backend     string
	OBSURL      string
	OBSPassword string
}

// LeaveThreshold is the configured attendee count below which the session is
// left. The zero value means "not set" and selects the default rule.
type LeaveThreshold struct {
	Value float64
	Set   bool
}

// ParseLeaveThreshold accepts "" (not set) or a number.
func ParseLeaveThreshold(raw string) (LeaveThreshold, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return LeaveThreshold{}, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return LeaveThreshold{}, fmt.Errorf("leave_threshold_number must be a number or empty, got %q", raw)
	}
	return LeaveThreshold{Value: v, Set: true}, nil
}

func (t LeaveThreshold) String() string {
	if !t.Set {
		return "default"
	}
	return strconv.FormatFloat(t.Value, 'f', -1, 64)
}

// PollInterval returns check_interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// AutoLeaveAfter returns the auto-leave delay, zero when disabled.
func (c *Config) AutoLeaveAfter() time.Duration {
	if c.AutoLeaveAfterMinutes <= 0 {
		return 0
	}
	return time.Duration(c.AutoLeaveAfterMinutes * float64(time.Minute))
}

// DefaultPath returns ~/.config/meetjoin/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "meetjoin", "config.json")
}

// DefaultStateDir returns ~/.cache/meetjoin.
func DefaultStateDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "meetjoin")
}

// Load reads the config at path. An empty path tries DefaultPath and then
// ./config.json; when neither exists the defaults are used. Any key can be
// overridden from the environment as MEETJOIN_<KEY> with dots replaced by
// underscores (MEETJOIN_BRIDGE_URL).
func Load(path string) (*Config, error) {
	v := newViper()

	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		v.SetConfigFile(resolved)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", resolved, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	cfg.Path = resolved

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	for _, candidate := range []string{DefaultPath(), "config.json"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file: %w", err)
		}
	}
	return "", nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MEETJOIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("check_interval", DefaultPollInterval)
	v.SetDefault("pause_search", false)
	v.SetDefault("auto_leave_after_min", 0)
	v.SetDefault("leave_if_last", false)
	v.SetDefault("leave_threshold_number", "")
	v.SetDefault("run_at_time", "")
	v.SetDefault("leave_check_every", DefaultLeaveCheckEvery)
	v.SetDefault("bridge.url", DefaultBridgeURL)
	v.SetDefault("bridge.token", "")
	v.SetDefault("bridge.action_timeout_seconds", 30)
	v.SetDefault("bridge.ready_timeout_seconds", 300)
	v.SetDefault("recorder.backend", RecorderOBS)
	v.SetDefault("recorder.obs_url", DefaultOBSURL)
	v.SetDefault("recorder.obs_password", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("state_dir", DefaultStateDir())
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	threshold, err := ParseLeaveThreshold(v.GetString("leave_threshold_number"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PollIntervalSeconds:   v.GetInt("check_interval"),
		PauseSearch:           v.GetBool("pause_search"),
		AutoLeaveAfterMinutes: v.GetFloat64("auto_leave_after_min"),
		LeaveIfLast:           v.GetBool("leave_if_last"),
		LeaveThreshold:        threshold,
		RunAtTime:             strings.TrimSpace(v.GetString("run_at_time")),
		LeaveCheckEvery:       v.GetInt("leave_check_every"),
		Bridge: BridgeConfig{
			URL:                  v.GetString("bridge.url"),
			Token:                v.GetString("bridge.token"),
			ActionTimeoutSeconds: v.GetInt("bridge.action_timeout_seconds"),
			ReadyTimeoutSeconds:  v.GetInt("bridge.ready_timeout_seconds"),
		},
		Recorder: RecorderConfig{
			Backend:     strings.ToLower(v.GetString("recorder.backend")),
			OBSURL:      v.GetString("recorder.obs_url"),
			OBSPassword: v.GetString("recorder.obs_password"),
		},
		MetricsAddr: v.GetString("metrics_addr"),
		StateDir:    v.GetString("state_dir"),
	}

	// Older files wrote 0 to mean "use the default interval".
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = DefaultPollInterval
	}
	return cfg, nil
}

// Validate checks Config for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("check_interval must be at least 1 second, got %d", c.PollIntervalSeconds)
	}
	if c.AutoLeaveAfterMinutes < 0 {
		return fmt.Errorf("auto_leave_after_min must not be negative, got %v", c.AutoLeaveAfterMinutes)
	}
	if c.LeaveCheckEvery < 1 {
		return fmt.Errorf("leave_check_every must be at least 1, got %d", c.LeaveCheckEvery)
	}
	if c.RunAtTime != "" {
		if _, err := time.Parse("15:04", c.RunAtTime); err != nil {
			return fmt.Errorf("run_at_time must be HH:MM, got %q", c.RunAtTime)
		}
	}
	switch c.Recorder.Backend {
	case RecorderOBS, RecorderNone:
	default:
		return fmt.Errorf("recorder.backend must be %q or %q, got %q", RecorderOBS, RecorderNone, c.Recorder.Backend)
	}
	if c.Bridge.URL == "" {
		return fmt.Errorf("bridge.url must be set")
	}
	if c.Bridge.ActionTimeoutSeconds < 1 {
		return fmt.Errorf("bridge.action_timeout_seconds must be at least 1, got %d", c.Bridge.ActionTimeoutSeconds)
	}
	return nil
}
