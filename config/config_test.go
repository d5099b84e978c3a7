package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/groundlink/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	ap, err := cfg.Autopilot()
	require.NoError(t, err)
	assert.Equal(t, command.AutopilotPX4, ap)
	assert.Equal(t, 500*time.Millisecond, cfg.Command.Timeout)
	assert.Equal(t, 200*time.Millisecond, cfg.FTP.Timeout)
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesOnlyPresentKeys(t *testing.T) {
	path := writeConfig(t, `
system_id: 200
endpoints:
  - tcpc:127.0.0.1:5760
command:
  timeout: 1.5s
  autopilot: ardupilot
ftp:
  root: /srv/vehicle
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint8(200), cfg.SystemID)
	assert.Equal(t, uint8(190), cfg.ComponentID)
	assert.Equal(t, []string{"tcpc:127.0.0.1:5760"}, cfg.Endpoints)
	assert.Equal(t, 1500*time.Millisecond, cfg.Command.Timeout)
	assert.Equal(t, command.DefaultRetries, cfg.Command.Retries)
	assert.Equal(t, "/srv/vehicle", cfg.FTP.Root)
	assert.Equal(t, 10, cfg.FTP.Retries)

	ap, err := cfg.Autopilot()
	require.NoError(t, err)
	assert.Equal(t, command.AutopilotArduPilot, ap)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"zero system":   "system_id: 0\n",
		"ftp retries":   "ftp:\n  retries: 0\n",
		"timeout":       "command:\n  timeout: -1s\n",
		"burst rate":    "ftp:\n  burst_packets_per_tick: 0\n",
		"autopilot":     "command:\n  autopilot: betaflight\n",
		"log level":     "log_level: chatty\n",
		"interval":      "interval: 0s\n",
		"negative cmds": "command:\n  retries: -2\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "endpoints: [unterminated\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}
