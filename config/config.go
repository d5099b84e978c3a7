package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opd-ai/groundlink/command"
	"github.com/opd-ai/groundlink/ftp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Target is the vehicle commands and file transfers are addressed to.
type Target struct {
	SystemID    uint8 `yaml:"system_id"`
	ComponentID uint8 `yaml:"component_id"`
}

// Command configures the command dispatcher.
type Command struct {
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	Autopilot string        `yaml:"autopilot"`
}

// FTP configures the file transfer client and server.
type FTP struct {
	Timeout             time.Duration `yaml:"timeout"`
	Retries             int           `yaml:"retries"`
	BurstPacketsPerTick int           `yaml:"burst_packets_per_tick"`
	// Root enables the file server when set.
	Root string `yaml:"root"`
}

// Config holds the settings of a groundlink system.
type Config struct {
	SystemID          uint8         `yaml:"system_id"`
	ComponentID       uint8         `yaml:"component_id"`
	Target            Target        `yaml:"target"`
	Endpoints         []string      `yaml:"endpoints"`
	SigningPassphrase string        `yaml:"signing_passphrase"`
	Heartbeat         bool          `yaml:"heartbeat"`
	Interval          time.Duration `yaml:"interval"`
	LogLevel          string        `yaml:"log_level"`
	Command           Command       `yaml:"command"`
	FTP               FTP           `yaml:"ftp"`
}

// Default returns the settings of a ground station talking to vehicle 1.
func Default() *Config {
	return &Config{
		SystemID:    245,
		ComponentID: 190,
		Target:      Target{SystemID: 1, ComponentID: 1},
		Endpoints:   []string{"udps:0.0.0.0:14550"},
		Heartbeat:   true,
		Interval:    10 * time.Millisecond,
		LogLevel:    "info",
		Command: Command{
			Timeout:   command.DefaultTimeout,
			Retries:   command.DefaultRetries,
			Autopilot: "px4",
		},
		FTP: FTP{
			Timeout:             ftp.DefaultTimeout,
			Retries:             ftp.DefaultRetries,
			BurstPacketsPerTick: ftp.DefaultBurstPacketsPerTick,
		},
	}
}

// DefaultPath returns ~/.groundlink/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".groundlink", "config.yaml")
	}
	return filepath.Join(home, ".groundlink", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"path":     path,
			}).Debug("No config file, using defaults")
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Load",
		"path":      path,
		"endpoints": len(cfg.Endpoints),
	}).Info("Config loaded")
	return cfg, nil
}

// Validate checks values the engines would reject.
func (c *Config) Validate() error {
	switch {
	case c.SystemID == 0:
		return fmt.Errorf("%w: system_id must be non-zero", ErrInvalid)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalid)
	case c.Command.Timeout <= 0:
		return fmt.Errorf("%w: command.timeout must be positive", ErrInvalid)
	case c.Command.Retries < 0:
		return fmt.Errorf("%w: command.retries must not be negative", ErrInvalid)
	case c.FTP.Timeout <= 0:
		return fmt.Errorf("%w: ftp.timeout must be positive", ErrInvalid)
	case c.FTP.Retries < 1:
		return fmt.Errorf("%w: ftp.retries must be at least 1", ErrInvalid)
	case c.FTP.BurstPacketsPerTick <= 0:
		return fmt.Errorf("%w: ftp.burst_packets_per_tick must be positive", ErrInvalid)
	}
	if _, err := c.Autopilot(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Autopilot returns the flavour named by command.autopilot.
func (c *Config) Autopilot() (command.Autopilot, error) {
	switch c.Command.Autopilot {
	case "", "px4":
		return command.AutopilotPX4, nil
	case "ardupilot":
		return command.AutopilotArduPilot, nil
	default:
		return 0, fmt.Errorf("%w: unknown autopilot %q", ErrInvalid, c.Command.Autopilot)
	}
}
