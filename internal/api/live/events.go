package live

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/quakemap/internal/humastar"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/templates"
)

// StatusEvent is the DOM event name each bus event is dispatched under.
const StatusEvent = "quakemap-event"

// StatusData feeds the widget-status fragment.
type StatusData struct {
	ID      string
	State   string
	Hovered string
	Error   string
}

// EventHandler streams widget and style changes to the Datastar UI via SSE.
type EventHandler struct {
	humastar.Handler
	widgets *service.WidgetService
}

// NewEventHandler creates a new event handler. renderer may be nil.
func NewEventHandler(widgets *service.WidgetService, renderer *templates.Renderer) *EventHandler {
	return &EventHandler{
		Handler: humastar.Handler{Renderer: renderer},
		widgets: widgets,
	}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events,
		huma.OperationTags("live"),
	)
}

type EventsInput struct {
	Widget string `query:"widget" doc:"Only stream events for this widget"`
}

// Status returns the fragment data for a widget.
func (h *EventHandler) Status(id string) StatusData {
	data := StatusData{ID: id, State: "deleted"}
	sess, err := h.widgets.Get(id)
	if err != nil {
		return data
	}
	data.State = sess.Widget.State().String()
	if ref, ok := sess.Widget.Hovered(); ok {
		data.Hovered = ref.String()
	}
	if err := sess.Widget.Err(); err != nil {
		data.Error = err.Error()
	}
	return data
}

func (h *EventHandler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	bus := h.widgets.Bus()
	if bus == nil {
		return nil, huma.Error503ServiceUnavailable("event bus not available")
	}
	return h.Stream(func(sse humastar.SSE) {
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)

		if input.Widget != "" {
			if err := h.patchStatus(sse, input.Widget); err != nil {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if input.Widget != "" && ev.Resource == "widgets" && ev.ID != input.Widget {
					continue
				}
				if ev.Resource == "widgets" && input.Widget != "" {
					if err := h.patchStatus(sse, ev.ID); err != nil {
						return
					}
					if err := h.signal(sse, ev); err != nil {
						return
					}
				}
				if err := sse.DispatchCustomEvent(StatusEvent, map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
					"detail":   ev.Detail,
				}); err != nil {
					return
				}
			}
		}
	}), nil
}

// signal mirrors lifecycle and hover changes into the page's signals.
func (h *EventHandler) signal(sse humastar.SSE, ev service.Event) error {
	switch ev.Action {
	case "error":
		return sse.Error(ev.Detail)
	case "ready":
		return sse.Success("map ready")
	case "hover":
		ref, hover := hoverDetail(ev.Detail)
		if !hover {
			ref = ""
		}
		return sse.Signals(map[string]any{"hovered": ref})
	}
	return nil
}

// hoverDetail splits a "<ref>=<bool>" hover event detail.
func hoverDetail(detail string) (string, bool) {
	i := strings.LastIndexByte(detail, '=')
	if i < 0 {
		return detail, false
	}
	return detail[:i], detail[i+1:] == "true"
}

func (h *EventHandler) patchStatus(sse humastar.SSE, id string) error {
	if h.Renderer == nil {
		return nil
	}
	html, err := h.Renderer.Render("widget-status", h.Status(id))
	if err != nil {
		return sse.Error(err.Error())
	}
	return sse.Replace(html, "#widget-status")
}
