package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSettingsGetMergesFileOverDefaults(t *testing.T) {
	out, err := execute(t, "--config", "testdata/file_settings.yaml", "settings", "get")
	require.NoError(t, err)

	assert.Contains(t, out, "warning_threshold_1=4\n")
	assert.Contains(t, out, "suspension_days_1=2\n")
	// untouched keys fall back to defaults
	assert.Contains(t, out, "grade_2_delay_minutes=5\n")
	assert.Contains(t, out, "default_dispatch_radius_km=50\n")
}

func TestSettingsSet(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		args      []string
		want      string
		errString string
	}{
		{
			name:   "database source stores the value",
			config: "testdata/db_settings.yaml",
			args:   []string{"warning_threshold_2", "6"},
			want:   "warning_threshold_2=6\n",
		},
		{
			name:      "file source is read-only",
			config:    "testdata/file_settings.yaml",
			args:      []string{"warning_threshold_2", "6"},
			errString: "edit that file instead",
		},
		{
			name:      "unknown key",
			config:    "testdata/db_settings.yaml",
			args:      []string{"max_speed", "80"},
			errString: "unknown setting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", tt.config, "settings", "set"}, tt.args...)
			out, err := execute(t, args...)
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSweepOnEmptyStore(t *testing.T) {
	out, err := execute(t, "--config", "testdata/db_settings.yaml", "sweep", "--batch", "10")
	require.NoError(t, err)
	assert.Equal(t, "expired 0 suspension(s)\n", out)
}

func TestSuspensionsList(t *testing.T) {
	out, err := execute(t, "--config", "testdata/db_settings.yaml", "suspensions", "list", "--active")
	require.NoError(t, err)
	assert.Equal(t, "no suspensions\n", out)

	_, err = execute(t, "--config", "testdata/db_settings.yaml", "suspensions", "list", "--actor-type", "DRIVER", "--actor-id", "1")
	assert.Error(t, err)
}

func TestMigrateNeedsPostgres(t *testing.T) {
	_, err := execute(t, "--config", "testdata/db_settings.yaml", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate needs the \"postgres\" store")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", "testdata/nope.yaml", "settings", "get")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
