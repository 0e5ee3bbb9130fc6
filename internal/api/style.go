package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/quakemap/internal/style"
	"github.com/joeblew999/quakemap/internal/humastar"
)

type StyleBody struct {
	Override bool `json:"override" doc:"Whether a saved document replaces the built-in one"`
	style.Document
}

type StyleOutput struct {
	Body StyleBody
}

type StyleInput struct {
	Body style.Document
}

// RegisterStyle registers the layer document routes. Changes apply to
// widgets mounted afterwards.
func (h *APIHandler) RegisterStyle(api huma.API) {
	huma.Get(api, "/api/v1/style", h.GetStyle, huma.OperationTags("style"))
	huma.Put(api, "/api/v1/style", h.PutStyle, huma.OperationTags("style"))
	huma.Delete(api, "/api/v1/style", h.ResetStyle, huma.OperationTags("style"))
}

func (h *APIHandler) GetStyle(ctx context.Context, input *humastar.EmptyInput) (*StyleOutput, error) {
	if h.svc == nil || h.svc.Styles == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	doc, override := h.svc.Styles.Get()
	return &StyleOutput{Body: StyleBody{Override: override, Document: doc}}, nil
}

func (h *APIHandler) PutStyle(ctx context.Context, input *StyleInput) (*StyleOutput, error) {
	if h.svc == nil || h.svc.Styles == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	if err := h.svc.Styles.Replace(input.Body); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	doc, override := h.svc.Styles.Get()
	return &StyleOutput{Body: StyleBody{Override: override, Document: doc}}, nil
}

func (h *APIHandler) ResetStyle(ctx context.Context, input *humastar.EmptyInput) (*StyleOutput, error) {
	if h.svc == nil || h.svc.Styles == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	if err := h.svc.Styles.Reset(); err != nil {
		return nil, huma.Error500InternalServerError("reset style", err)
	}
	doc, override := h.svc.Styles.Get()
	return &StyleOutput{Body: StyleBody{Override: override, Document: doc}}, nil
}
