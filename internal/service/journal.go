package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/observability"
)

// journaledEngine counts and records hover writes on their way to the engine.
type journaledEngine struct {
	engine.Engine

	widgetID string
	journal  Journal
	metrics  *observability.Metrics
	bus      *EventBus
	logger   *slog.Logger
}

func (e *journaledEngine) SetFeatureState(ref engine.FeatureRef, state engine.State) error {
	if err := e.Engine.SetFeatureState(ref, state); err != nil {
		return err
	}
	hover, ok := state[engine.Hover].(bool)
	if !ok {
		return nil
	}
	e.metrics.FeatureStateWrites.WithLabelValues(strconv.FormatBool(hover)).Inc()
	e.bus.Publish(Event{Resource: "widgets", Action: "hover", ID: e.widgetID, Detail: ref.String() + "=" + strconv.FormatBool(hover)})
	if e.journal != nil {
		if err := e.journal.Record(context.Background(), e.widgetID, ref, hover); err != nil {
			e.logger.Warn("journal hover write", "feature", ref.String(), "error", err)
		}
	}
	return nil
}
