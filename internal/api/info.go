package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/quakemap/internal/humastar"
)

// MapInfo is the camera and style every new widget starts with.
type MapInfo struct {
	Style  string     `json:"style" doc:"Base style URL" example:"mapbox://styles/mapbox/streets-v11"`
	Center [2]float64 `json:"center" doc:"Initial center as [lon, lat]"`
	Zoom   float64    `json:"zoom" doc:"Initial zoom" example:"4"`
}

type InfoHandler struct {
	dataDir string
	dbOK    bool
	token   bool
	mapInfo MapInfo
}

func NewInfoHandler(dataDir string, dbOK, tokenConfigured bool, m MapInfo) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, token: tokenConfigured, mapInfo: m}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name            string   `json:"name" doc:"Service name"`
	Version         string   `json:"version" doc:"Service version"`
	DataDir         string   `json:"data_dir" doc:"Data directory path"`
	DB              bool     `json:"db" doc:"Whether the hover journal is available"`
	TokenConfigured bool     `json:"token_configured" doc:"Whether a map access token is set"`
	Map             MapInfo  `json:"map" doc:"Initial map settings"`
	Features        []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body InfoBody }, error) {
	features := []string{"hover", "heatmap", "3d-buildings", "metrics"}
	if h.dbOK {
		features = append(features, "journal")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:            "quakemap",
		Version:         "0.1.0",
		DataDir:         h.dataDir,
		DB:              h.dbOK,
		TokenConfigured: h.token,
		Map:             h.mapInfo,
		Features:        features,
	}}, nil
}
