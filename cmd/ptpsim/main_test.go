package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCLIConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      *CLIConfig
		wantErr     bool
		errContains string
	}{
		{
			name:   "scenario run",
			config: &CLIConfig{scenarioPath: "pair.yaml", logLevel: "info"},
		},
		{
			name:   "ntp check only",
			config: &CLIConfig{ntpCheck: "pool.ntp.org", logLevel: "warn"},
		},
		{
			name:        "nothing to do",
			config:      &CLIConfig{logLevel: "info"},
			wantErr:     true,
			errContains: "scenario file is required",
		},
		{
			name:        "negative duration",
			config:      &CLIConfig{scenarioPath: "pair.yaml", logLevel: "info", duration: -time.Second},
			wantErr:     true,
			errContains: "cannot be negative",
		},
		{
			name:        "bad log level",
			config:      &CLIConfig{scenarioPath: "pair.yaml", logLevel: "loud"},
			wantErr:     true,
			errContains: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCLIConfig(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSetupLoggingToFile(t *testing.T) {
	oldLevel := logrus.GetLevel()
	oldOut := logrus.StandardLogger().Out
	defer func() {
		logrus.SetLevel(oldLevel)
		logrus.SetOutput(oldOut)
	}()

	path := filepath.Join(t.TempDir(), "sim.log")
	cleanup, err := setupLogging(&CLIConfig{logLevel: "debug", logFile: path})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	logrus.Debug("probe entry")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "probe entry")
}

func TestSetupLoggingBadFile(t *testing.T) {
	oldLevel := logrus.GetLevel()
	defer logrus.SetLevel(oldLevel)

	path := filepath.Join(t.TempDir(), "missing", "sim.log")
	_, err := setupLogging(&CLIConfig{logLevel: "info", logFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log file")
}

func TestCLIConfigDefaults(t *testing.T) {
	config := &CLIConfig{}

	assert.Empty(t, config.scenarioPath)
	assert.Empty(t, config.ntpCheck)
	assert.Zero(t, config.duration)
	assert.False(t, config.help)
}
