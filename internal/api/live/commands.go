// Package live contains the Datastar SSE streams a map page listens to: the
// engine commands it replays against Mapbox GL and the widget status feed.
package live

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/quakemap/internal/engine/remote"
	"github.com/joeblew999/quakemap/internal/humastar"
	"github.com/joeblew999/quakemap/internal/observability"
	"github.com/joeblew999/quakemap/internal/service"
)

// CommandEvent is the DOM event name each command is dispatched under.
const CommandEvent = "quakemap-command"

// CommandHandler streams a widget's engine commands to its page.
type CommandHandler struct {
	widgets *service.WidgetService
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCommandHandler creates a command stream handler.
func NewCommandHandler(widgets *service.WidgetService, metrics *observability.Metrics, logger *slog.Logger) *CommandHandler {
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &CommandHandler{widgets: widgets, metrics: metrics, logger: logger}
}

func (h *CommandHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/widgets/{id}/commands", h.Commands,
		huma.OperationTags("live"),
	)
}

type CommandsInput struct {
	ID string `path:"id" doc:"Widget ID"`
}

// Commands replays every queued command as a quakemap-command event. The
// stream ends after the remove command, or when the page disconnects.
func (h *CommandHandler) Commands(ctx context.Context, input *CommandsInput) (*huma.StreamResponse, error) {
	sess, err := h.widgets.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	if sess.Remote == nil {
		return nil, huma.Error409Conflict("widget has no engine")
	}
	if err := sess.Attach(); err != nil {
		return nil, huma.Error409Conflict(err.Error())
	}

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			defer sess.Detach()
			sse := humastar.NewSSE(humaCtx)
			logger := h.logger.With("widget", sess.ID)

			for {
				cmds, err := sess.Remote.Queue().Next(humaCtx.Context())
				if err != nil {
					if errors.Is(err, remote.ErrClosed) {
						logger.Debug("command stream finished")
					}
					return
				}
				for i, cmd := range cmds {
					if err := sse.DispatchCustomEvent(CommandEvent, cmd); err != nil {
						logger.Warn("command stream write", "seq", cmd.Seq, "error", err)
						// The page dedupes by seq, so a reconnect may replay cmd.
						sess.Remote.Queue().Requeue(cmds[i:])
						return
					}
					h.metrics.CommandsStreamed.Inc()
				}
			}
		},
	}, nil
}
