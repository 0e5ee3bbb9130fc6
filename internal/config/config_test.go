package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/quakemap/internal/style"
)

const testMapboxToken = "pk.test-token"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MAPBOX_KEY", "REACT_APP_MAPBOX_KEY", "MAP_STYLE", "MAP_CENTER", "MAP_ZOOM",
		"EARTHQUAKES_URL", "STATES_URL", "STYLE_FILE", "WIDGET_IDLE_TTL", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.MapboxToken)
	assert.False(t, cfg.TokenConfigured())
	assert.Equal(t, "mapbox://styles/mapbox/streets-v11", cfg.MapStyle)
	assert.Equal(t, orb.Point{-110.417931, 36.778259}, cfg.MapCenter)
	assert.Equal(t, 4.0, cfg.MapZoom)
	assert.Equal(t, style.DefaultEarthquakesURL, cfg.EarthquakesURL)
	assert.Equal(t, style.DefaultStatesURL, cfg.StatesURL)
	assert.Empty(t, cfg.StyleFile)
	assert.Equal(t, 2*time.Minute, cfg.WidgetIdleTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_CustomEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAPBOX_KEY", testMapboxToken)
	t.Setenv("MAP_STYLE", "mapbox://styles/mapbox/dark-v10")
	t.Setenv("MAP_CENTER", " -74.0, 40.7 ")
	t.Setenv("MAP_ZOOM", "10.5")
	t.Setenv("EARTHQUAKES_URL", "http://localhost/eq.geojson")
	t.Setenv("STATES_URL", "http://localhost/states.geojson")
	t.Setenv("WIDGET_IDLE_TTL", "30s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.TokenConfigured())
	assert.Equal(t, "mapbox://styles/mapbox/dark-v10", cfg.MapStyle)
	assert.Equal(t, orb.Point{-74.0, 40.7}, cfg.MapCenter)
	assert.Equal(t, 10.5, cfg.MapZoom)
	assert.Equal(t, 30*time.Second, cfg.WidgetIdleTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	doc, err := cfg.Document()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/eq.geojson", doc.Sources[0].Data)
	assert.Equal(t, "http://localhost/states.geojson", doc.Sources[1].Data)
}

func TestLoad_LegacyTokenVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("REACT_APP_MAPBOX_KEY", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)

	t.Setenv("MAPBOX_KEY", "pk.preferred")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "pk.preferred", cfg.MapboxToken)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"MAP_CENTER", "nowhere", "MAP_CENTER"},
		{"MAP_CENTER", "1,2,3", "MAP_CENTER"},
		{"MAP_CENTER", "200,10", "out of range"},
		{"MAP_ZOOM", "abc", "MAP_ZOOM"},
		{"MAP_ZOOM", "23", "MAP_ZOOM"},
		{"MAP_ZOOM", "-1", "MAP_ZOOM"},
		{"WIDGET_IDLE_TTL", "soon", "WIDGET_IDLE_TTL"},
		{"WIDGET_IDLE_TTL", "-5s", "WIDGET_IDLE_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDocument_StyleFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "style.yaml")
	data, err := style.Marshal(style.Default(style.DefaultSources()), true)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("STYLE_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	doc, err := cfg.Document()
	require.NoError(t, err)
	_, ok := doc.Layer(style.LayerStateFills)
	assert.True(t, ok)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("MAPBOX_KEY")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAPBOX_KEY="+testMapboxToken+"\n"), 0o600))

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("MAPBOX_KEY") })
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
