package settings

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]string
		checkFunc func(t *testing.T, v Values)
	}{
		{
			name: "empty map falls back to defaults",
			raw:  map[string]string{},
			checkFunc: func(t *testing.T, v Values) {
				assert.Equal(t, Defaults(), v)
				// urgent jobs are released to every grade at once
				assert.Zero(t, v.UrgentDelay)
			},
		},
		{
			name: "overrides are applied",
			raw: map[string]string{
				KeyGrade2DelayMinutes:    "10",
				KeyGrade3DelayMinutes:    "30",
				KeyUrgentExposureMinutes: "2",
				KeyWarningThreshold1:     "2",
				KeyWarningThreshold2:     "4",
				KeySuspensionDays1:       "1",
				KeySuspensionDays2:       "14",
			},
			checkFunc: func(t *testing.T, v Values) {
				assert.Equal(t, 10*time.Minute, v.Grade2Delay)
				assert.Equal(t, 30*time.Minute, v.Grade3Delay)
				assert.Equal(t, 2*time.Minute, v.UrgentDelay)
				assert.Equal(t, 2, v.WarningThreshold1)
				assert.Equal(t, 4, v.WarningThreshold2)
				assert.Equal(t, 1, v.SuspensionDays1)
				assert.Equal(t, 14, v.SuspensionDays2)
				assert.Equal(t, 50.0, v.DefaultRadiusKm)
			},
		},
		{
			name: "garbage keeps defaults",
			raw: map[string]string{
				KeyGrade2DelayMinutes:     "soon",
				KeySuspensionDays1:        "-3",
				KeyDefaultDispatchRadiusK: "0",
			},
			checkFunc: func(t *testing.T, v Values) {
				assert.Equal(t, 5*time.Minute, v.Grade2Delay)
				assert.Equal(t, 3, v.SuspensionDays1)
				assert.Equal(t, 50.0, v.DefaultRadiusKm)
			},
		},
		{
			name: "inverted thresholds revert to defaults",
			raw: map[string]string{
				KeyWarningThreshold1: "6",
				KeyWarningThreshold2: "4",
			},
			checkFunc: func(t *testing.T, v Values) {
				assert.Equal(t, 3, v.WarningThreshold1)
				assert.Equal(t, 5, v.WarningThreshold2)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.checkFunc(t, Parse(tt.raw, testLogger(&buf)))
		})
	}
}

func TestProviderReload(t *testing.T) {
	var buf bytes.Buffer
	raw := map[string]string{KeyGrade2DelayMinutes: "7"}
	p := NewProvider(SourceFunc(func(context.Context) (map[string]string, error) {
		return raw, nil
	}), testLogger(&buf))

	assert.Equal(t, Defaults(), p.Current())

	changed, err := p.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 7*time.Minute, p.Current().Grade2Delay)

	changed, err = p.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed, "unchanged content must not reinstall a snapshot")

	raw = map[string]string{KeyGrade2DelayMinutes: "9"}
	changed, err = p.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 9*time.Minute, p.Current().Grade2Delay)
}

func TestProviderReloadFailureKeepsSnapshot(t *testing.T) {
	var buf bytes.Buffer
	fail := false
	p := NewProvider(SourceFunc(func(context.Context) (map[string]string, error) {
		if fail {
			return nil, errors.New("db down")
		}
		return map[string]string{KeySuspensionDays2: "10"}, nil
	}), testLogger(&buf))

	_, err := p.Reload(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = p.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, 10, p.Current().SuspensionDays2)
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	a := map[string]string{"a": "1", "b": "2"}
	b := map[string]string{"b": "2", "a": "1"}
	c := map[string]string{"a": "1", "b": "3"}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grade_2_delay_minutes: 4\ndefault_dispatch_radius_km: 12.5\n"), 0o600))

	raw, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4", raw[KeyGrade2DelayMinutes])
	assert.Equal(t, "12.5", raw[KeyDefaultDispatchRadiusK])

	_, err = FileSource{Path: filepath.Join(dir, "missing.yaml")}.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read settings file")
}

func TestValuesMapRoundTrip(t *testing.T) {
	v := Defaults()
	v.Grade3Delay = 20 * time.Minute
	v.DefaultRadiusKm = 12.5

	var buf bytes.Buffer
	assert.Equal(t, v, Parse(v.Map(), testLogger(&buf)))
	assert.Empty(t, buf.String())

	assert.True(t, Known(KeySuspensionDays2))
	assert.False(t, Known("grade_4_delay_minutes"))
}
