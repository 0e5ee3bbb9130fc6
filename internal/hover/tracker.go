// Package hover keeps at most one feature of a source in the hovered state.
//
// The tracker remembers the feature it last marked and, when the pointer
// moves to a different feature, clears the old mark before setting the new
// one. Leaving the layer clears the mark. Marks are written through the
// engine's feature-state store, which the fill-opacity expression reads.
package hover

import (
	"fmt"

	"github.com/joeblew999/quakemap/internal/engine"
)

// Tracker is not safe for concurrent use. Engines deliver events on a single
// dispatch path; callers reading Current from other goroutines must hold the
// lock that guards the handlers.
type Tracker struct {
	setter  engine.FeatureStateSetter
	source  string
	current *engine.FeatureRef
}

// New returns a tracker that writes hover state for features of source.
func New(setter engine.FeatureStateSetter, source string) *Tracker {
	return &Tracker{setter: setter, source: source}
}

// Source returns the tracked source name.
func (t *Tracker) Source() string { return t.source }

// OnMove handles a pointer move over the tracked layer. features is the hit
// list reported by the engine; only the first entry counts.
func (t *Tracker) OnMove(features []engine.Feature) error {
	if len(features) == 0 {
		return nil
	}
	f := features[0]
	if !f.ID.Valid() {
		return nil
	}
	next := f.Ref()
	next.Source = t.source

	if t.current != nil && *t.current != next {
		if err := t.setter.SetFeatureState(*t.current, engine.HoverState(false)); err != nil {
			return fmt.Errorf("clear hover %s: %w", t.current, err)
		}
		t.current = nil
	}
	if err := t.setter.SetFeatureState(next, engine.HoverState(true)); err != nil {
		return fmt.Errorf("set hover %s: %w", next, err)
	}
	t.current = &next
	return nil
}

// OnLeave handles the pointer leaving the tracked layer.
func (t *Tracker) OnLeave() error {
	if t.current == nil {
		return nil
	}
	prev := *t.current
	t.current = nil
	if err := t.setter.SetFeatureState(prev, engine.HoverState(false)); err != nil {
		return fmt.Errorf("clear hover %s: %w", prev, err)
	}
	return nil
}

// Current returns the hovered feature.
func (t *Tracker) Current() (engine.FeatureRef, bool) {
	if t.current == nil {
		return engine.FeatureRef{}, false
	}
	return *t.current, true
}

// Reset forgets the hovered feature without writing. Used once the engine
// holding the state is gone.
func (t *Tracker) Reset() { t.current = nil }

// Handle routes mousemove and mouseleave events. Other events are ignored.
func (t *Tracker) Handle(e engine.Event) error {
	switch e.Type {
	case engine.EventMouseMove:
		return t.OnMove(e.Features)
	case engine.EventMouseLeave:
		return t.OnLeave()
	}
	return nil
}
