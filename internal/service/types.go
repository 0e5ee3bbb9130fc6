// Package service holds the widget registry and the services around it: the
// style document store, the local data listing and the event bus.
package service

import (
	"context"
	"errors"

	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/engine"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStreamBusy         = errors.New("widget already has a command stream")
	ErrJournalUnavailable = errors.New("hover journal not available")
)

// Journal records hover writes. *db.Journal implements it.
type Journal interface {
	Record(ctx context.Context, widgetID string, ref engine.FeatureRef, hover bool) error
	History(ctx context.Context, widgetID string, limit int) ([]db.Entry, error)
}

var _ Journal = (*db.Journal)(nil)

// SourceFile is a local data file that can back a map source.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"us_states.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
	URL      string `json:"url" doc:"URL the map engine can fetch it from" example:"/data/sources/us_states.geojson"`
}
