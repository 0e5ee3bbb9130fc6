// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/humastar"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/widget"
)

// ErrTokenMissing is returned when widgets are requested without an access token.
const ErrTokenMissing = "map access token is not configured (set MAPBOX_KEY)"

// Services holds the service dependencies for API handlers.
type Services struct {
	Widgets *service.WidgetService
	Styles  *service.StyleService
	Sources *service.SourceService
	// Journal is nil when DuckDB could not be opened.
	Journal *db.Journal

	TokenConfigured bool
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Widget ID" example:"0b7c7f2e-6a55-4a8e-9d0c-3f1f0e2b8a11"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterSources registers source file routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
	huma.Post(api, "/api/v1/sources", h.UploadSource, huma.OperationTags("sources"))
	huma.Delete(api, "/api/v1/sources/{name}", h.DeleteSource, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

type UploadSourceInput struct {
	RawBody huma.MultipartFormFiles[struct {
		File huma.FormFile `form:"file" required:"true" doc:"GeoJSON feature collection"`
	}]
}

type SourceNameInput struct {
	Name string `path:"name" doc:"Source file name" example:"us_states.geojson"`
}

func (h *APIHandler) UploadSource(ctx context.Context, input *UploadSourceInput) (*struct{ Body service.SourceFile }, error) {
	if h.svc == nil || h.svc.Sources == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	file := input.RawBody.Data().File
	defer file.Close()
	saved, err := h.svc.Sources.Save(file.Filename, file)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body service.SourceFile }{Body: saved}, nil
}

func (h *APIHandler) DeleteSource(ctx context.Context, input *SourceNameInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Sources == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	if err := h.svc.Sources.Delete(input.Name); err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Source deleted"}}, nil
}

// statusError maps service and engine errors onto HTTP problems.
func statusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrStreamBusy),
		errors.Is(err, widget.ErrNotMounted),
		errors.Is(err, widget.ErrDestroyed),
		errors.Is(err, engine.ErrRemoved):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrInvalidSourceName):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrJournalUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, engine.ErrDuplicateSource),
		errors.Is(err, engine.ErrDuplicateLayer),
		errors.Is(err, engine.ErrUnknownSource):
		return huma.Error422UnprocessableEntity("widget setup failed", err)
	}
	return huma.Error500InternalServerError("internal error", err)
}
