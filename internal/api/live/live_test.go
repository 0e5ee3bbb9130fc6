package live

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/observability"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/style"
	"github.com/joeblew999/quakemap/internal/templates"
)

type harness struct {
	srv     *httptest.Server
	widgets *service.WidgetService
	metrics *observability.Metrics
	events  *EventHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fragments"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte(`{{define "page"}}page{{end}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fragments", "widget-status.html"),
		[]byte(`{{define "widget-status"}}<div id="widget-status" data-state="{{.State}}">{{.Hovered}}</div>{{end}}`), 0o644))
	renderer, err := templates.New(dir)
	require.NoError(t, err)

	h := &harness{metrics: observability.NewMetricsForTesting()}
	h.widgets = service.NewWidgetService(service.WidgetOptions{
		Engine:  engine.Options{Style: "mapbox://styles/mapbox/streets-v11", AccessToken: "pk.test"},
		Bus:     service.NewEventBus(),
		Metrics: h.metrics,
	})

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("quakemap", "1.0.0"))
	NewCommandHandler(h.widgets, h.metrics, nil).RegisterRoutes(api)
	h.events = NewEventHandler(h.widgets, renderer)
	h.events.RegisterRoutes(api)

	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) get(t *testing.T, ctx context.Context, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCommands_StreamUntilRemoved(t *testing.T) {
	h := newHarness(t)
	sess, err := h.widgets.Create("map")
	require.NoError(t, err)
	require.NoError(t, h.widgets.Load(sess.ID, nil))
	require.NoError(t, h.widgets.Delete(sess.ID))
	queued := sess.Remote.Queue().Len()

	// A widget deleted before any page attached keeps its whole log queued.
	sess, err = h.widgets.Create("map")
	require.NoError(t, err)
	require.NoError(t, h.widgets.Load(sess.ID, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := h.get(t, ctx, "/api/v1/widgets/"+sess.ID+"/commands")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, sess.Streaming, time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusConflict, h.get(t, ctx, "/api/v1/widgets/"+sess.ID+"/commands").StatusCode)

	require.NoError(t, h.widgets.Delete(sess.ID))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, CommandEvent)
	assert.Contains(t, text, "create")
	assert.Contains(t, text, "addLayer")
	assert.Contains(t, text, "remove")
	assert.Equal(t, float64(queued), testutil.ToFloat64(h.metrics.CommandsStreamed))
	assert.Eventually(t, func() bool { return !sess.Streaming() }, time.Second, 10*time.Millisecond)
}

func TestCommands_UnknownWidget(t *testing.T) {
	h := newHarness(t)
	resp := h.get(t, context.Background(), "/api/v1/widgets/nope/commands")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEvents_PatchesStatus(t *testing.T) {
	h := newHarness(t)
	sess, err := h.widgets.Create("map")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := h.get(t, ctx, "/api/v1/events?widget="+sess.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	waitFor := func(needle string) {
		t.Helper()
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), needle) {
				return
			}
		}
		t.Fatalf("stream ended before %q", needle)
	}
	waitFor(`data-state="loading"`)

	require.Eventually(t, func() bool { return h.widgets.Bus().Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, h.widgets.Load(sess.ID, nil))
	waitFor(`data-state="ready"`)
	waitFor(`"success":"map ready"`)

	require.NoError(t, h.widgets.Pointer(sess.ID, engine.Event{
		Type:     engine.EventMouseMove,
		Layer:    style.LayerStateFills,
		Features: []engine.Feature{{ID: engine.NumberID(7), Source: style.SourceStates}},
	}))
	waitFor(`"hovered":"states#7"`)
	waitFor(StatusEvent)

	require.NoError(t, h.widgets.Pointer(sess.ID, engine.Event{Type: engine.EventMouseLeave, Layer: style.LayerStateFills}))
	waitFor(`"hovered":""`)
}

func TestHoverDetail(t *testing.T) {
	ref, on := hoverDetail("states#7=true")
	assert.Equal(t, "states#7", ref)
	assert.True(t, on)

	ref, on = hoverDetail("states#a=b=false")
	assert.Equal(t, "states#a=b", ref)
	assert.False(t, on)

	_, on = hoverDetail("garbage")
	assert.False(t, on)
}

func TestEventHandler_StatusOfDeleted(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, StatusData{ID: "gone", State: "deleted"}, h.events.Status("gone"))
}
