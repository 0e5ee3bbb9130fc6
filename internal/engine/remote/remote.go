// Package remote drives a browser-hosted map engine. Every call is applied to
// an in-memory mirror, which validates it and answers queries, and then queued
// as a Command for the page to replay against Mapbox GL. Events the page posts
// back are dispatched through the mirror.
package remote

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/engine/memory"
	"github.com/joeblew999/quakemap/internal/style"
)

type subKey struct {
	t     engine.EventType
	layer string
}

// Engine is an engine.Engine whose renderer lives in a browser.
type Engine struct {
	opts   engine.Options
	mirror *memory.Engine
	queue  *Queue

	mu     sync.Mutex
	refs   map[subKey]int
	subs   map[engine.Subscription]subKey
	loaded bool
}

var _ engine.Engine = (*Engine)(nil)

// New creates the engine and queues its create command.
func New(opts engine.Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		opts:   opts,
		mirror: memory.New(opts, memory.WithLogger(logger)),
		queue:  NewQueue(),
		refs:   make(map[subKey]int),
		subs:   make(map[engine.Subscription]subKey),
	}
	o := opts
	e.queue.Push(Command{Op: OpCreate, Options: &o})
	return e
}

// Factory returns an engine.Factory that hands each new engine to created
// before returning it.
func Factory(logger *slog.Logger, created func(*Engine)) engine.Factory {
	return func(opts engine.Options) (engine.Engine, error) {
		e := New(opts, logger)
		if created != nil {
			created(e)
		}
		return e, nil
	}
}

// Options returns the options the page creates its map with.
func (e *Engine) Options() engine.Options { return e.opts }

// Queue returns the command queue the page consumes.
func (e *Engine) Queue() *Queue { return e.queue }

// Mirror returns the in-memory copy of the browser engine.
func (e *Engine) Mirror() *memory.Engine { return e.mirror }

// On registers h. Pointer events need the page to listen, so the first
// handler for an event and layer queues a subscribe command.
func (e *Engine) On(t engine.EventType, layer string, h engine.Handler) engine.Subscription {
	sub := e.mirror.On(t, layer, h)
	if !pointerEvent(t) {
		return sub
	}
	k := subKey{t, layer}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs[sub] = k
	e.refs[k]++
	if e.refs[k] == 1 {
		e.queue.Push(Command{Op: OpSubscribe, Event: t, LayerID: layer})
	}
	return sub
}

func (e *Engine) Off(sub engine.Subscription) {
	e.mirror.Off(sub)
	e.mu.Lock()
	defer e.mu.Unlock()
	k, ok := e.subs[sub]
	if !ok {
		return
	}
	delete(e.subs, sub)
	e.refs[k]--
	if e.refs[k] == 0 {
		delete(e.refs, k)
		e.queue.Push(Command{Op: OpUnsubscribe, Event: k.t, LayerID: k.layer})
	}
}

func pointerEvent(t engine.EventType) bool {
	return t == engine.EventMouseMove || t == engine.EventMouseLeave
}

func (e *Engine) AddSource(name string, src style.Source) error {
	if err := e.mirror.AddSource(name, src); err != nil {
		return err
	}
	s := src
	e.queue.Push(Command{Op: OpAddSource, Name: name, Source: &s})
	return nil
}

// AddLayer forwards the anchor only when the page has it; otherwise the page
// appends, matching the mirror.
func (e *Engine) AddLayer(layer style.Layer, before string) error {
	anchored := before != "" && e.mirror.HasLayer(before)
	if err := e.mirror.AddLayer(layer, before); err != nil {
		return err
	}
	l := layer.Clone()
	l.Before = ""
	c := Command{Op: OpAddLayer, Layer: &l}
	if anchored {
		c.Before = before
	}
	e.queue.Push(c)
	return nil
}

func (e *Engine) SetFeatureState(ref engine.FeatureRef, state engine.State) error {
	if err := e.mirror.SetFeatureState(ref, state); err != nil {
		return err
	}
	r := ref
	e.queue.Push(Command{Op: OpSetFeatureState, Feature: &r, State: state})
	return nil
}

func (e *Engine) FeatureState(ref engine.FeatureRef) engine.State {
	return e.mirror.FeatureState(ref)
}

func (e *Engine) Style() []style.Layer { return e.mirror.Style() }

func (e *Engine) Resize() error {
	if err := e.mirror.Resize(); err != nil {
		return err
	}
	e.queue.Push(Command{Op: OpResize})
	return nil
}

// Remove queues the final remove command and closes the queue.
func (e *Engine) Remove() error {
	if err := e.mirror.Remove(); err != nil {
		return err
	}
	e.queue.Push(Command{Op: OpRemove})
	e.queue.Close()
	return nil
}

// Load reports that the page finished loading its base style. A non-empty
// stack replaces the mirror's default one before load handlers run. Only the
// first report counts; later ones leave the mirror alone.
func (e *Engine) Load(base []style.Layer) {
	e.mu.Lock()
	first := !e.loaded
	e.loaded = true
	e.mu.Unlock()
	if !first {
		return
	}
	if len(base) > 0 {
		e.mirror.ReplaceBase(base)
	}
	e.mirror.Load()
}

// Dispatch delivers a pointer event reported by the page.
func (e *Engine) Dispatch(ev engine.Event) { e.mirror.Emit(ev) }

// Fail delivers an error reported by the page.
func (e *Engine) Fail(msg string) {
	if msg == "" {
		msg = "unknown engine error"
	}
	e.mirror.Fail(errors.New(msg))
}

// Removed reports whether Remove was called.
func (e *Engine) Removed() bool { return e.mirror.Removed() }
