// Package style holds the map's declarative configuration: sources, layers and
// the paint expressions the map engine evaluates.
//
// Expressions stay data ([]any in Mapbox GL expression syntax). Eval exists
// for previews and tests; the engine remains the only renderer.
package style

import "slices"

// Layer types understood by the engine.
const (
	TypeBackground    = "background"
	TypeFill          = "fill"
	TypeLine          = "line"
	TypeSymbol        = "symbol"
	TypeCircle        = "circle"
	TypeHeatmap       = "heatmap"
	TypeFillExtrusion = "fill-extrusion"
)

// BeforeFirstLabel is a placement anchor resolved at style-load time to the
// first symbol layer that draws text.
const BeforeFirstLabel = "@first-label"

// Source describes where a layer's features come from.
type Source struct {
	Type string `json:"type" yaml:"type" doc:"Source type" example:"geojson"`
	Data string `json:"data,omitempty" yaml:"data,omitempty" doc:"GeoJSON URL" example:"https://docs.mapbox.com/mapbox-gl-js/assets/earthquakes.geojson"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty" doc:"TileJSON URL for vector sources"`
}

// SourceDef is a named source inside a Document.
type SourceDef struct {
	ID     string `json:"id" yaml:"id" doc:"Source name" example:"earthquakes"`
	Source `yaml:",inline"`
}

// Layer is a rendering rule binding a source to a visual representation.
type Layer struct {
	ID          string         `json:"id" yaml:"id" doc:"Layer ID" example:"state-fills"`
	Type        string         `json:"type" yaml:"type" doc:"Layer type" example:"fill"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty" doc:"Source name"`
	SourceLayer string         `json:"source-layer,omitempty" yaml:"source-layer,omitempty" doc:"Layer inside a vector source"`
	Filter      []any          `json:"filter,omitempty" yaml:"filter,omitempty" doc:"Filter expression"`
	MinZoom     *float64       `json:"minzoom,omitempty" yaml:"minzoom,omitempty" doc:"Minimum zoom"`
	MaxZoom     *float64       `json:"maxzoom,omitempty" yaml:"maxzoom,omitempty" doc:"Maximum zoom"`
	Layout      map[string]any `json:"layout,omitempty" yaml:"layout,omitempty" doc:"Layout properties"`
	Paint       map[string]any `json:"paint,omitempty" yaml:"paint,omitempty" doc:"Paint properties"`

	// Before names the layer this one is inserted under. Empty appends on top.
	Before string `json:"before,omitempty" yaml:"before,omitempty" doc:"Insert before this layer ID"`
}

// IsLabel reports whether the layer is a symbol layer that draws text.
func (l Layer) IsLabel() bool {
	if l.Type != TypeSymbol {
		return false
	}
	_, ok := l.Layout["text-field"]
	return ok
}

// Clone returns a copy with its own top-level maps.
func (l Layer) Clone() Layer {
	c := l
	if l.Layout != nil {
		c.Layout = make(map[string]any, len(l.Layout))
		for k, v := range l.Layout {
			c.Layout[k] = v
		}
	}
	if l.Paint != nil {
		c.Paint = make(map[string]any, len(l.Paint))
		for k, v := range l.Paint {
			c.Paint[k] = v
		}
	}
	c.Filter = slices.Clone(l.Filter)
	return c
}

// FirstLabelLayer returns the ID of the first label layer in stack order, or
// "" when the stack has none.
func FirstLabelLayer(layers []Layer) string {
	for _, l := range layers {
		if l.IsLabel() {
			return l.ID
		}
	}
	return ""
}

func zoom(z float64) *float64 { return &z }
