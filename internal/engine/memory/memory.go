// Package memory is a headless map engine. It keeps the layer stack and
// feature-state store in process, dispatches events synchronously, and can
// hit-test pointer positions against polygons loaded with orb.
//
// It backs tests, the simulate command, and the mirror kept by the remote
// engine.
package memory

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/style"
)

// StreetsLayers is a reduced copy of the Mapbox streets stack: enough layers
// to exercise label lookup and before-anchor placement.
func StreetsLayers() []style.Layer {
	return []style.Layer{
		{ID: "land", Type: style.TypeBackground},
		{ID: "water", Type: style.TypeFill, Source: style.SourceComposite, SourceLayer: "water"},
		{ID: "building", Type: style.TypeFill, Source: style.SourceComposite, SourceLayer: "building"},
		{ID: "road-primary", Type: style.TypeLine, Source: style.SourceComposite, SourceLayer: "road"},
		{ID: "road-oneway-arrow", Type: style.TypeSymbol, Source: style.SourceComposite, SourceLayer: "road",
			Layout: map[string]any{"icon-image": "oneway-small"}},
		{ID: "road-label", Type: style.TypeSymbol, Source: style.SourceComposite, SourceLayer: "road",
			Layout: map[string]any{"text-field": []any{"get", "name"}}},
		{ID: style.LayerWaterwayLabel, Type: style.TypeSymbol, Source: style.SourceComposite, SourceLayer: "waterway",
			Layout: map[string]any{"text-field": []any{"get", "name"}}},
		{ID: "settlement-label", Type: style.TypeSymbol, Source: style.SourceComposite, SourceLayer: "place_label",
			Layout: map[string]any{"text-field": []any{"get", "name"}}},
	}
}

// StateListener observes successful feature-state writes.
type StateListener func(ref engine.FeatureRef, state engine.State)

// Option configures an Engine.
type Option func(*Engine)

// WithBaseLayers replaces the streets stack the engine starts with.
func WithBaseLayers(layers []style.Layer) Option {
	return func(e *Engine) { e.layers = cloneLayers(layers) }
}

// WithFeatures registers polygons used to hit-test pointer positions over
// layers drawing the named source.
func WithFeatures(source string, fc *geojson.FeatureCollection) Option {
	return func(e *Engine) { e.hit[source] = fc }
}

// WithStateListener observes feature-state writes.
func WithStateListener(fn StateListener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, fn) }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine is an in-process engine.Engine.
type Engine struct {
	handlers engine.Registry

	opts      engine.Options
	logger    *slog.Logger
	listeners []StateListener

	// dispatch serializes event delivery: handlers never run concurrently.
	dispatch sync.Mutex

	mu      sync.RWMutex
	removed bool
	sources map[string]style.Source
	layers  []style.Layer
	states  map[engine.FeatureRef]engine.State
	resizes int
	hit     map[string]*geojson.FeatureCollection
	inside  map[string]bool
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine with the streets base stack and the composite source.
func New(opts engine.Options, options ...Option) *Engine {
	e := &Engine{
		opts:    opts,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		sources: map[string]style.Source{style.SourceComposite: {Type: "vector", URL: "mapbox://mapbox.mapbox-streets-v8"}},
		layers:  StreetsLayers(),
		states:  make(map[engine.FeatureRef]engine.State),
		hit:     make(map[string]*geojson.FeatureCollection),
		inside:  make(map[string]bool),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Factory returns an engine.Factory producing memory engines.
func Factory(options ...Option) engine.Factory {
	return func(opts engine.Options) (engine.Engine, error) {
		return New(opts, options...), nil
	}
}

// Options returns the options the engine was created with.
func (e *Engine) Options() engine.Options { return e.opts }

// On registers a handler. Handlers registered after Remove never fire.
func (e *Engine) On(t engine.EventType, layer string, h engine.Handler) engine.Subscription {
	return e.handlers.Add(t, layer, h)
}

// Off unregisters a handler.
func (e *Engine) Off(sub engine.Subscription) {
	e.handlers.Remove(sub)
}

// Listeners returns how many handlers are registered for t on layer.
func (e *Engine) Listeners(t engine.EventType, layer string) int {
	return e.handlers.Count(t, layer)
}

// Handlers returns the total number of registered handlers.
func (e *Engine) Handlers() int { return e.handlers.Len() }

func (e *Engine) AddSource(name string, src style.Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return engine.ErrRemoved
	}
	if _, ok := e.sources[name]; ok {
		return fmt.Errorf("%w: %q", engine.ErrDuplicateSource, name)
	}
	e.sources[name] = src
	return nil
}

// AddLayer inserts layer before the named anchor. A missing anchor appends the
// layer and logs a warning.
func (e *Engine) AddLayer(layer style.Layer, before string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return engine.ErrRemoved
	}
	if e.indexLocked(layer.ID) >= 0 {
		return fmt.Errorf("%w: %q", engine.ErrDuplicateLayer, layer.ID)
	}
	if layer.Type != style.TypeBackground {
		if _, ok := e.sources[layer.Source]; !ok {
			return fmt.Errorf("layer %q: %w %q", layer.ID, engine.ErrUnknownSource, layer.Source)
		}
	}

	l := layer.Clone()
	l.Before = ""

	idx := len(e.layers)
	if before != "" {
		if i := e.indexLocked(before); i >= 0 {
			idx = i
		} else {
			e.logger.Warn("anchor layer not in style, appending", "layer", layer.ID, "before", before)
		}
	}
	e.layers = slices.Insert(e.layers, idx, l)
	return nil
}

// HasLayer reports whether id is in the stack.
func (e *Engine) HasLayer(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.indexLocked(id) >= 0
}

func (e *Engine) indexLocked(id string) int {
	return slices.IndexFunc(e.layers, func(l style.Layer) bool { return l.ID == id })
}

// SetFeatureState merges state into the feature's stored state.
func (e *Engine) SetFeatureState(ref engine.FeatureRef, state engine.State) error {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return engine.ErrRemoved
	}
	if !ref.ID.Valid() {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", ref.Source, engine.ErrUndefinedID)
	}
	if _, ok := e.sources[ref.Source]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w %q", engine.ErrUnknownSource, ref.Source)
	}
	cur := e.states[ref]
	if cur == nil {
		cur = engine.State{}
		e.states[ref] = cur
	}
	for k, v := range state {
		cur[k] = v
	}
	listeners := e.listeners
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ref, state)
	}
	return nil
}

// FeatureState returns a copy of the feature's state.
func (e *Engine) FeatureState(ref engine.FeatureRef) engine.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := engine.State{}
	for k, v := range e.states[ref] {
		out[k] = v
	}
	return out
}

// Hovered returns every ref in source whose hover flag is set.
func (e *Engine) Hovered(source string) []engine.FeatureRef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var refs []engine.FeatureRef
	for ref, st := range e.states {
		if ref.Source == source && st.Bool(engine.Hover) {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (e *Engine) Style() []style.Layer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneLayers(e.layers)
}

// ReplaceBase swaps the layer stack, e.g. for the one a browser reports on load.
func (e *Engine) ReplaceBase(layers []style.Layer) {
	e.mu.Lock()
	e.layers = cloneLayers(layers)
	e.mu.Unlock()
}

func (e *Engine) Resize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return engine.ErrRemoved
	}
	e.resizes++
	return nil
}

// Resizes returns how many times Resize succeeded.
func (e *Engine) Resizes() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resizes
}

func (e *Engine) Remove() error {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return engine.ErrRemoved
	}
	e.removed = true
	e.mu.Unlock()
	e.handlers.Clear()
	return nil
}

// Removed reports whether Remove was called.
func (e *Engine) Removed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.removed
}

// Emit delivers ev to matching handlers. Events after Remove are dropped.
// Handlers must not call Emit.
func (e *Engine) Emit(ev engine.Event) {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	if e.Removed() {
		return
	}
	for _, h := range e.handlers.Match(ev) {
		h(ev)
	}
}

// Load signals that the base style finished loading.
func (e *Engine) Load() { e.Emit(engine.Event{Type: engine.EventLoad}) }

// Fail reports an engine error.
func (e *Engine) Fail(err error) { e.Emit(engine.Event{Type: engine.EventError, Err: err}) }

// PointerAt moves the pointer to pt. Every polygon layer whose source has hit
// data gets mousemove when the pointer is over one of its features, and
// mouseleave when it moves off the last one.
func (e *Engine) PointerAt(pt orb.Point) {
	var events []engine.Event

	e.mu.Lock()
	for i := len(e.layers) - 1; i >= 0; i-- {
		l := e.layers[i]
		if l.Type != style.TypeFill && l.Type != style.TypeFillExtrusion {
			continue
		}
		fc, ok := e.hit[l.Source]
		if !ok {
			continue
		}
		features := hitTest(fc, l.Source, pt)
		switch {
		case len(features) > 0:
			e.inside[l.ID] = true
			events = append(events, engine.Event{Type: engine.EventMouseMove, Layer: l.ID, Features: features, LngLat: pt})
		case e.inside[l.ID]:
			delete(e.inside, l.ID)
			events = append(events, engine.Event{Type: engine.EventMouseLeave, Layer: l.ID, LngLat: pt})
		}
	}
	e.mu.Unlock()

	for _, ev := range events {
		e.Emit(ev)
	}
}

// PointerOut moves the pointer off the map.
func (e *Engine) PointerOut() {
	e.mu.Lock()
	var layers []string
	for i := len(e.layers) - 1; i >= 0; i-- {
		if e.inside[e.layers[i].ID] {
			layers = append(layers, e.layers[i].ID)
		}
	}
	clear(e.inside)
	e.mu.Unlock()

	for _, id := range layers {
		e.Emit(engine.Event{Type: engine.EventMouseLeave, Layer: id})
	}
}

// hitTest returns the features containing pt, last-drawn first.
func hitTest(fc *geojson.FeatureCollection, source string, pt orb.Point) []engine.Feature {
	var out []engine.Feature
	for i := len(fc.Features) - 1; i >= 0; i-- {
		f := fc.Features[i]
		if f.Geometry == nil || !f.Geometry.Bound().Contains(pt) {
			continue
		}
		if !contains(f.Geometry, pt) {
			continue
		}
		out = append(out, engine.Feature{
			ID:         engine.IDOf(f.ID),
			Source:     source,
			Properties: map[string]any(f.Properties),
		})
	}
	return out
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	case orb.Bound:
		return geom.Contains(pt)
	}
	return false
}

func cloneLayers(layers []style.Layer) []style.Layer {
	out := make([]style.Layer, len(layers))
	for i, l := range layers {
		out[i] = l.Clone()
	}
	return out
}
