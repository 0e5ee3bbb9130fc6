// Package engine defines the map engine the widget drives: an external
// renderer exposing event subscription, source/layer registration and a
// feature-state store. Implementations live in subpackages.
package engine

import (
	"errors"

	"github.com/paulmach/orb"

	"github.com/joeblew999/quakemap/internal/style"
)

var (
	ErrRemoved         = errors.New("engine removed")
	ErrDuplicateSource = errors.New("source already exists")
	ErrDuplicateLayer  = errors.New("layer already exists")
	ErrUnknownSource   = errors.New("unknown source")
	ErrUndefinedID     = errors.New("feature has no id")
)

// EventType names an engine event.
type EventType string

const (
	EventLoad       EventType = "load"
	EventError      EventType = "error"
	EventMouseMove  EventType = "mousemove"
	EventMouseLeave EventType = "mouseleave"
)

// Event is delivered to handlers on the engine's dispatch goroutine.
type Event struct {
	Type  EventType
	Layer string

	// Features under the pointer in hit-test order. Mouse events only.
	Features []Feature
	LngLat   orb.Point

	// Err is set on EventError.
	Err error
}

// Handler receives engine events.
type Handler func(Event)

// Options configures a new engine instance.
type Options struct {
	Container   string    `json:"container"`
	Style       string    `json:"style"`
	Center      orb.Point `json:"center"`
	Zoom        float64   `json:"zoom"`
	AccessToken string    `json:"accessToken"`
}

// FeatureStateSetter writes partial feature state.
type FeatureStateSetter interface {
	SetFeatureState(ref FeatureRef, state State) error
}

// Engine is the map engine the widget configures and listens to.
type Engine interface {
	FeatureStateSetter

	// On registers h for events of type t. A non-empty layer scopes pointer
	// events to that layer.
	On(t EventType, layer string, h Handler) Subscription
	Off(sub Subscription)

	AddSource(name string, src style.Source) error
	// AddLayer inserts layer below the layer named before, or on top when
	// before is empty.
	AddLayer(layer style.Layer, before string) error

	FeatureState(ref FeatureRef) State
	// Style returns the current layer stack, bottom first.
	Style() []style.Layer

	Resize() error
	// Remove releases the engine. Handlers are dropped and later calls fail
	// with ErrRemoved.
	Remove() error
}

// Factory creates an engine.
type Factory func(Options) (Engine, error)
