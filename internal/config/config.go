package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"

	"github.com/joeblew999/quakemap/internal/style"
)

// Config holds the map and widget settings, populated from environment variables.
type Config struct {
	// Mapbox access token. Empty means the map cannot be shown.
	MapboxToken string
	MapStyle    string
	MapCenter   orb.Point
	MapZoom     float64

	EarthquakesURL string
	StatesURL      string
	// StyleFile optionally replaces the built-in layer document.
	StyleFile string

	WidgetIdleTTL time.Duration

	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads variables from path if it exists. Variables already set
// in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	center, err := parseCenter(envOrDefault("MAP_CENTER", "-110.417931,36.778259"))
	if err != nil {
		return nil, err
	}

	zoom, err := strconv.ParseFloat(envOrDefault("MAP_ZOOM", "4"), 64)
	if err != nil || zoom < 0 || zoom > 22 {
		return nil, errors.New("invalid MAP_ZOOM: must be a number between 0 and 22")
	}

	ttl, err := time.ParseDuration(envOrDefault("WIDGET_IDLE_TTL", "2m"))
	if err != nil || ttl <= 0 {
		return nil, errors.New("invalid WIDGET_IDLE_TTL")
	}

	token := os.Getenv("MAPBOX_KEY")
	if token == "" {
		token = os.Getenv("REACT_APP_MAPBOX_KEY")
	}

	cfg := &Config{
		MapboxToken:    token,
		MapStyle:       envOrDefault("MAP_STYLE", "mapbox://styles/mapbox/streets-v11"),
		MapCenter:      center,
		MapZoom:        zoom,
		EarthquakesURL: envOrDefault("EARTHQUAKES_URL", style.DefaultEarthquakesURL),
		StatesURL:      envOrDefault("STATES_URL", style.DefaultStatesURL),
		StyleFile:      os.Getenv("STYLE_FILE"),
		WidgetIdleTTL:  ttl,
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.MapStyle == "" {
		return nil, errors.New("MAP_STYLE is required")
	}

	return cfg, nil
}

// TokenConfigured reports whether a Mapbox access token is set.
func (c *Config) TokenConfigured() bool { return c.MapboxToken != "" }

// Sources returns the data URLs for the default style document.
func (c *Config) Sources() style.Sources {
	return style.Sources{Earthquakes: c.EarthquakesURL, States: c.StatesURL}
}

// Document returns the layer document: STYLE_FILE when set, otherwise the
// built-in one over the configured data URLs.
func (c *Config) Document() (style.Document, error) {
	if c.StyleFile != "" {
		return style.Load(c.StyleFile)
	}
	return style.Default(c.Sources()), nil
}

func parseCenter(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("invalid MAP_CENTER %q: want lon,lat", s)
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return orb.Point{}, fmt.Errorf("invalid MAP_CENTER %q: want lon,lat", s)
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return orb.Point{}, fmt.Errorf("invalid MAP_CENTER %q: out of range", s)
	}
	return orb.Point{lon, lat}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
