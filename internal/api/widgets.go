package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/humastar"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/style"
	"github.com/joeblew999/quakemap/internal/widget"
)

// WidgetBody is the API view of a mounted widget.
type WidgetBody struct {
	ID        string       `json:"id" doc:"Widget ID"`
	Container string       `json:"container" doc:"DOM container the engine renders into" example:"map"`
	State     string       `json:"state" doc:"Lifecycle state" enum:"uninitialized,loading,ready,destroyed"`
	Created   time.Time    `json:"created" doc:"Creation time"`
	Streaming bool         `json:"streaming" doc:"Whether a page is reading the command stream"`
	Hovered   *FeatureBody `json:"hovered,omitempty" doc:"Feature currently marked hover=true"`
	Error     string       `json:"error,omitempty" doc:"Setup failure that destroyed the widget"`
}

var (
	actionLoad    = humastar.ActionDef{Rel: "load", Pattern: "/api/v1/widgets/%s/load", Method: http.MethodPost, Title: "Report style loaded"}
	actionPointer = humastar.ActionDef{Rel: "pointer", Pattern: "/api/v1/widgets/%s/pointer", Method: http.MethodPost, Title: "Report pointer event"}
	actionResize  = humastar.ActionDef{Rel: "resize", Pattern: "/api/v1/widgets/%s/resize", Method: http.MethodPost, Title: "Resize map"}
	actionStream  = humastar.ActionDef{Rel: "commands", Pattern: "/api/v1/widgets/%s/commands", Method: http.MethodGet, Title: "Engine command stream"}
	actionHistory = humastar.ActionDef{Rel: "history", Pattern: "/api/v1/widgets/%s/history", Method: http.MethodGet, Title: "Hover history"}
	actionDelete  = humastar.ActionDef{Rel: "delete", Pattern: "/api/v1/widgets/%s", Method: http.MethodDelete, Title: "Unmount widget"}
)

// Actions returns the links valid in the widget's current state.
func (b WidgetBody) Actions() []humastar.Action {
	switch b.State {
	case widget.Loading.String():
		return humastar.ActionsFor(b.ID, actionStream, actionLoad, actionResize, actionDelete)
	case widget.Ready.String():
		return humastar.ActionsFor(b.ID, actionStream, actionPointer, actionResize, actionHistory, actionDelete)
	case widget.Destroyed.String():
		return humastar.ActionsFor(b.ID, actionHistory, actionDelete)
	}
	return nil
}

func widgetBody(sess *service.Session) WidgetBody {
	b := WidgetBody{
		ID:        sess.ID,
		State:     sess.Widget.State().String(),
		Created:   sess.Created,
		Streaming: sess.Streaming(),
	}
	if sess.Remote != nil {
		b.Container = sess.Remote.Options().Container
	}
	if ref, ok := sess.Widget.Hovered(); ok {
		b.Hovered = &FeatureBody{ID: ref.ID.Value(), Source: ref.Source, SourceLayer: ref.SourceLayer}
	}
	if err := sess.Widget.Err(); err != nil {
		b.Error = err.Error()
	}
	return b
}

type WidgetOutput struct {
	Body WidgetBody
}

type WidgetListInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"0" maximum:"100" default:"20" doc:"Page size"`
}

type WidgetListOutput struct {
	Body humastar.PageBody[WidgetBody]
}

type CreateWidgetBody struct {
	Container string `json:"container,omitempty" doc:"DOM container ID; generated when empty" example:"map"`
}

type CreateWidgetInput struct {
	Body *CreateWidgetBody `required:"false"`
}

type LoadBody struct {
	Layers []style.Layer `json:"layers,omitempty" doc:"Layers of the loaded base style, bottom first"`
}

type LoadInput struct {
	IDInput
	Body *LoadBody `required:"false"`
}

// FeatureBody is a feature reported under the pointer.
type FeatureBody struct {
	ID          any            `json:"id,omitempty" doc:"Feature ID: integer, string or absent"`
	Source      string         `json:"source" doc:"Source name" example:"states"`
	SourceLayer string         `json:"sourceLayer,omitempty" doc:"Layer inside a vector source"`
	Properties  map[string]any `json:"properties,omitempty" doc:"Feature properties"`
}

type PointerBody struct {
	Type     string        `json:"type" enum:"mousemove,mouseleave" doc:"Pointer event type"`
	Layer    string        `json:"layer,omitempty" doc:"Layer the event was delivered for" example:"state-fills"`
	Features []FeatureBody `json:"features,omitempty" doc:"Features under the pointer, topmost first"`
	LngLat   []float64     `json:"lngLat,omitempty" minItems:"2" maxItems:"2" doc:"Pointer position as [lon, lat]"`
}

type PointerInput struct {
	IDInput
	Body PointerBody
}

// Event converts the body into an engine event.
func (b PointerBody) Event() engine.Event {
	ev := engine.Event{Type: engine.EventType(b.Type), Layer: b.Layer}
	for _, f := range b.Features {
		ev.Features = append(ev.Features, engine.Feature{
			ID:          engine.IDOf(f.ID),
			Source:      f.Source,
			SourceLayer: f.SourceLayer,
			Properties:  f.Properties,
		})
	}
	if len(b.LngLat) == 2 {
		ev.LngLat = orb.Point{b.LngLat[0], b.LngLat[1]}
	}
	return ev
}

type ErrorInput struct {
	IDInput
	Body struct {
		Message string `json:"message" doc:"Engine error message" example:"Unauthorized"`
	}
}

type HistoryInput struct {
	IDInput
	Limit int `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Maximum entries, newest first"`
}

type HistoryOutput struct {
	Body []db.Entry
}

// RegisterWidgets registers the widget lifecycle routes.
func (h *APIHandler) RegisterWidgets(api huma.API) {
	huma.Get(api, "/api/v1/widgets", h.ListWidgets, huma.OperationTags("widgets"))
	huma.Register(api, huma.Operation{
		OperationID:   "create-widget",
		Method:        http.MethodPost,
		Path:          "/api/v1/widgets",
		Summary:       "Mount a widget",
		Tags:          []string{"widgets"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateWidget)
	huma.Get(api, "/api/v1/widgets/{id}", h.GetWidget, huma.OperationTags("widgets"))
	huma.Delete(api, "/api/v1/widgets/{id}", h.DeleteWidget, huma.OperationTags("widgets"))
	huma.Post(api, "/api/v1/widgets/{id}/load", h.LoadWidget, huma.OperationTags("widgets"))
	huma.Post(api, "/api/v1/widgets/{id}/pointer", h.PointerWidget, huma.OperationTags("widgets"))
	huma.Post(api, "/api/v1/widgets/{id}/resize", h.ResizeWidget, huma.OperationTags("widgets"))
	huma.Post(api, "/api/v1/widgets/{id}/error", h.ErrorWidget, huma.OperationTags("widgets"))
	huma.Get(api, "/api/v1/widgets/{id}/history", h.WidgetHistory, huma.OperationTags("widgets"))
}

func (h *APIHandler) widgets() (*service.WidgetService, error) {
	if h.svc == nil || h.svc.Widgets == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	return h.svc.Widgets, nil
}

func (h *APIHandler) ListWidgets(ctx context.Context, input *WidgetListInput) (*WidgetListOutput, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	sessions := svc.List()
	bodies := make([]WidgetBody, len(sessions))
	for i, sess := range sessions {
		bodies[i] = widgetBody(sess)
	}
	return &WidgetListOutput{Body: humastar.Paginate(bodies, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) CreateWidget(ctx context.Context, input *CreateWidgetInput) (*WidgetOutput, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	if !h.svc.TokenConfigured {
		return nil, huma.Error503ServiceUnavailable(ErrTokenMissing)
	}
	var container string
	if input.Body != nil {
		container = input.Body.Container
	}
	sess, err := svc.Create(container)
	if err != nil {
		return nil, statusError(err)
	}
	return &WidgetOutput{Body: widgetBody(sess)}, nil
}

func (h *APIHandler) GetWidget(ctx context.Context, input *IDInput) (*WidgetOutput, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	sess, err := svc.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return &WidgetOutput{Body: widgetBody(sess)}, nil
}

func (h *APIHandler) DeleteWidget(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	if err := svc.Delete(input.ID); err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Widget unmounted"}}, nil
}

func (h *APIHandler) LoadWidget(ctx context.Context, input *LoadInput) (*WidgetOutput, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	var base []style.Layer
	if input.Body != nil {
		base = input.Body.Layers
	}
	if err := svc.Load(input.ID, base); err != nil {
		return nil, statusError(err)
	}
	sess, err := svc.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return &WidgetOutput{Body: widgetBody(sess)}, nil
}

func (h *APIHandler) PointerWidget(ctx context.Context, input *PointerInput) (*WidgetOutput, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	if err := svc.Pointer(input.ID, input.Body.Event()); err != nil {
		return nil, statusError(err)
	}
	sess, err := svc.Get(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return &WidgetOutput{Body: widgetBody(sess)}, nil
}

func (h *APIHandler) ResizeWidget(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	if err := svc.Resize(input.ID); err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Resize queued"}}, nil
}

func (h *APIHandler) ErrorWidget(ctx context.Context, input *ErrorInput) (*struct{ Body MessageBody }, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	if err := svc.Fail(input.ID, input.Body.Message); err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Error recorded"}}, nil
}

func (h *APIHandler) WidgetHistory(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
	svc, err := h.widgets()
	if err != nil {
		return nil, err
	}
	entries, err := svc.History(ctx, input.ID, input.Limit)
	if err != nil {
		return nil, statusError(err)
	}
	if entries == nil {
		entries = []db.Entry{}
	}
	return &HistoryOutput{Body: entries}, nil
}
