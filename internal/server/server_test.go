package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/quakemap/internal/config"
	"github.com/joeblew999/quakemap/internal/style"
	"github.com/joeblew999/quakemap/internal/widget"
)

func testConfig(token string) *config.Config {
	return &config.Config{
		MapboxToken:    token,
		MapStyle:       "mapbox://styles/mapbox/streets-v11",
		MapCenter:      orb.Point{-110.417931, 36.778259},
		MapZoom:        4,
		EarthquakesURL: style.DefaultEarthquakesURL,
		StatesURL:      style.DefaultStatesURL,
		WidgetIdleTTL:  time.Minute,
	}
}

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	s, err := New(Config{Host: "localhost", Port: "8080", DataDir: t.TempDir(), WebDir: "../../web"}, testConfig(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, "pk.test")
	rec := serve(s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "quakemap", body["service"])
	assert.Equal(t, true, body["tokenConfigured"])

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/nope").Code)
}

func TestViewer_MountsWidget(t *testing.T) {
	s := newTestServer(t, "pk.test")
	rec := serve(s, http.MethodGet, "/viewer")
	require.Equal(t, http.StatusOK, rec.Code)

	sessions := s.Services().Widgets.List()
	require.Len(t, sessions, 1)
	sess := sessions[0]
	assert.Equal(t, widget.Loading, sess.Widget.State())

	html := rec.Body.String()
	assert.Contains(t, html, `/api/v1/widgets/`+sess.ID+`/commands`)
	assert.Contains(t, html, `id="`+sess.Remote.Options().Container+`"`)
	assert.Contains(t, html, `id="widget-status"`)
}

func TestViewer_NoToken(t *testing.T) {
	s := newTestServer(t, "")
	rec := serve(s, http.MethodGet, "/viewer")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "MAPBOX_KEY")
	assert.Empty(t, s.Services().Widgets.List())
}

func TestViewer_NoTemplates(t *testing.T) {
	s, err := New(Config{DataDir: t.TempDir()}, testConfig("pk.test"), nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/viewer").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "pk.test")
	serve(s, http.MethodGet, "/viewer")
	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quakemap_widgets_active 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHealthLinks(t *testing.T) {
	s := newTestServer(t, "pk.test")
	rec := serve(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	links := rec.Header().Values("Link")
	assert.Contains(t, links, `</api/v1/widgets>; rel="widgets"`)
	assert.Contains(t, links, `</openapi.json>; rel="service-desc"`)
}

func TestJournalAvailable(t *testing.T) {
	s := newTestServer(t, "pk.test")
	rec := serve(s, http.MethodGet, "/api/v1/tables")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hover_journal")
}

func TestSourcesFileServer(t *testing.T) {
	s := newTestServer(t, "pk.test")
	_, err := s.Services().Sources.Save("us.geojson", strings.NewReader(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)

	rec := serve(s, http.MethodGet, "/data/sources/us.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStyleFileError(t *testing.T) {
	cfg := testConfig("pk.test")
	cfg.StyleFile = "does-not-exist.yaml"
	_, err := New(Config{DataDir: t.TempDir()}, cfg, nil)
	assert.Error(t, err)
}
