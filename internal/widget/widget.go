// Package widget hosts one map: it creates the engine once, adds the
// configured sources and layers when the base style loads, keeps the hover
// tracker bound to the interactive layer, and tears everything down on
// Unmount.
package widget

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/hover"
	"github.com/joeblew999/quakemap/internal/style"
)

// State is the widget lifecycle state.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrAlreadyMounted = errors.New("widget already mounted")
	ErrDestroyed      = errors.New("widget destroyed")
	ErrNotMounted     = errors.New("widget not mounted")
)

// Options configures a widget.
type Options struct {
	// Engine is passed to the factory: container, camera, style URL, token.
	Engine engine.Options

	// Document lists the sources and layers added on style load.
	Document style.Document

	// HoverLayer and HoverSource name the interactive fill layer and the
	// source its features come from.
	HoverLayer  string
	HoverSource string

	Logger *slog.Logger

	// OnStateChange is called after every transition, with the widget lock held.
	OnStateChange func(from, to State)
	// OnError receives engine error events and setup failures.
	OnError func(error)
}

func (o *Options) defaults() {
	if o.HoverLayer == "" {
		o.HoverLayer = style.LayerStateFills
	}
	if o.HoverSource == "" {
		o.HoverSource = style.SourceStates
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Widget is safe for concurrent use.
type Widget struct {
	opts Options

	mu      sync.Mutex
	state   State
	eng     engine.Engine
	tracker *hover.Tracker
	subs    []engine.Subscription
	err     error
}

// New returns an unmounted widget.
func New(opts Options) *Widget {
	opts.defaults()
	return &Widget{opts: opts}
}

// Mount creates the engine and waits for its load event. It runs at most once.
func (w *Widget) Mount(factory engine.Factory) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Destroyed:
		return ErrDestroyed
	case Uninitialized:
	default:
		return ErrAlreadyMounted
	}

	eng, err := factory(w.opts.Engine)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	w.eng = eng
	w.tracker = hover.New(eng, w.opts.HoverSource)
	w.subs = append(w.subs,
		eng.On(engine.EventLoad, "", w.handleLoad),
		eng.On(engine.EventError, "", w.handleError),
	)
	w.transition(Loading)
	w.opts.Logger.Debug("widget mounted", "container", w.opts.Engine.Container)
	return nil
}

func (w *Widget) handleLoad(engine.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Loading {
		return
	}
	if err := w.setup(); err != nil {
		w.err = err
		w.opts.Logger.Error("widget setup failed", "error", err)
		if w.opts.OnError != nil {
			w.opts.OnError(err)
		}
		w.teardown()
		return
	}
	w.transition(Ready)
}

// setup adds the document to the engine. Caller holds w.mu.
func (w *Widget) setup() error {
	label := style.FirstLabelLayer(w.eng.Style())

	for _, s := range w.opts.Document.Sources {
		if s.ID == style.SourceComposite {
			continue
		}
		if err := w.eng.AddSource(s.ID, s.Source); err != nil {
			return fmt.Errorf("add source %s: %w", s.ID, err)
		}
	}
	for _, l := range w.opts.Document.Layers {
		before := l.Before
		if before == style.BeforeFirstLabel {
			before = label
		}
		if err := w.eng.AddLayer(l, before); err != nil {
			return fmt.Errorf("add layer %s: %w", l.ID, err)
		}
	}

	w.subs = append(w.subs,
		w.eng.On(engine.EventMouseMove, w.opts.HoverLayer, w.handlePointer),
		w.eng.On(engine.EventMouseLeave, w.opts.HoverLayer, w.handlePointer),
	)

	if err := w.eng.Resize(); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	return nil
}

func (w *Widget) handlePointer(e engine.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Ready {
		return
	}
	if err := w.tracker.Handle(e); err != nil {
		w.opts.Logger.Warn("hover update failed", "layer", e.Layer, "error", err)
	}
}

func (w *Widget) handleError(e engine.Event) {
	w.opts.Logger.Error("map engine error", "error", e.Err)
	if w.opts.OnError != nil && e.Err != nil {
		w.opts.OnError(e.Err)
	}
}

// Resize tells the engine its container changed size.
func (w *Widget) Resize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Loading && w.state != Ready {
		return ErrNotMounted
	}
	return w.eng.Resize()
}

// Unmount detaches handlers and removes the engine. It is idempotent.
func (w *Widget) Unmount() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.teardown()
}

// teardown moves to Destroyed. Caller holds w.mu.
func (w *Widget) teardown() {
	if w.state == Destroyed {
		return
	}
	if w.eng != nil {
		for _, sub := range w.subs {
			w.eng.Off(sub)
		}
		w.subs = nil
		w.tracker.Reset()
		if err := w.eng.Remove(); err != nil && !errors.Is(err, engine.ErrRemoved) {
			w.opts.Logger.Warn("remove engine", "error", err)
		}
	}
	w.transition(Destroyed)
}

func (w *Widget) transition(to State) {
	from := w.state
	w.state = to
	w.opts.Logger.Info("widget state", "from", from, "to", to)
	if w.opts.OnStateChange != nil {
		w.opts.OnStateChange(from, to)
	}
}

// State returns the lifecycle state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err returns the setup failure that destroyed the widget, if any.
func (w *Widget) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Engine returns the mounted engine, or nil before Mount.
func (w *Widget) Engine() engine.Engine {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eng
}

// Hovered returns the feature currently marked as hovered.
func (w *Widget) Hovered() (engine.FeatureRef, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tracker == nil {
		return engine.FeatureRef{}, false
	}
	return w.tracker.Current()
}

// Options returns the options the widget was created with.
func (w *Widget) Options() Options { return w.opts }
