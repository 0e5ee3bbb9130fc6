package style

import (
	"errors"
	"fmt"
)

// Source and layer names used by the default document.
const (
	SourceEarthquakes = "earthquakes"
	SourceStates      = "states"
	SourceComposite   = "composite"

	LayerEarthquakesHeat  = "earthquakes-heat"
	LayerEarthquakesPoint = "earthquakes-point"
	LayerBuildings        = "3d-buildings"
	LayerStateFills       = "state-fills"
	LayerStateBorders     = "state-borders"

	// LayerWaterwayLabel is a label layer of the Mapbox streets base style.
	LayerWaterwayLabel = "waterway-label"
)

// Default data locations.
const (
	DefaultEarthquakesURL = "https://docs.mapbox.com/mapbox-gl-js/assets/earthquakes.geojson"
	DefaultStatesURL      = "https://docs.mapbox.com/mapbox-gl-js/assets/us_states.geojson"
)

var ErrInvalidDocument = errors.New("invalid style document")

// Sources holds the remote GeoJSON endpoints the default document points at.
type Sources struct {
	Earthquakes string
	States      string
}

// DefaultSources returns the public Mapbox sample datasets.
func DefaultSources() Sources {
	return Sources{Earthquakes: DefaultEarthquakesURL, States: DefaultStatesURL}
}

// Document is the ordered set of sources and layers added on style load.
type Document struct {
	Sources []SourceDef `json:"sources" yaml:"sources" doc:"Sources in registration order"`
	Layers  []Layer     `json:"layers" yaml:"layers" doc:"Layers in insertion order"`
}

// Layer returns the layer with the given ID.
func (d Document) Layer(id string) (Layer, bool) {
	for _, l := range d.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Validate checks IDs are unique and every layer points at a declared source.
// The engine-provided composite source is always allowed.
func (d Document) Validate() error {
	sources := map[string]bool{SourceComposite: true}
	for _, s := range d.Sources {
		if s.ID == "" {
			return fmt.Errorf("%w: source without id", ErrInvalidDocument)
		}
		if s.ID != SourceComposite && sources[s.ID] {
			return fmt.Errorf("%w: duplicate source %q", ErrInvalidDocument, s.ID)
		}
		if s.Type == "" {
			return fmt.Errorf("%w: source %q has no type", ErrInvalidDocument, s.ID)
		}
		sources[s.ID] = true
	}

	layers := map[string]bool{}
	for _, l := range d.Layers {
		if l.ID == "" {
			return fmt.Errorf("%w: layer without id", ErrInvalidDocument)
		}
		if layers[l.ID] {
			return fmt.Errorf("%w: duplicate layer %q", ErrInvalidDocument, l.ID)
		}
		layers[l.ID] = true
		if l.Type == "" {
			return fmt.Errorf("%w: layer %q has no type", ErrInvalidDocument, l.ID)
		}
		if l.Type != TypeBackground && !sources[l.Source] {
			return fmt.Errorf("%w: layer %q uses unknown source %q", ErrInvalidDocument, l.ID, l.Source)
		}
	}
	return nil
}

// Default builds the earthquake, building and state layers.
func Default(src Sources) Document {
	return Document{
		Sources: []SourceDef{
			{ID: SourceEarthquakes, Source: Source{Type: "geojson", Data: src.Earthquakes}},
			{ID: SourceStates, Source: Source{Type: "geojson", Data: src.States}},
		},
		Layers: []Layer{
			earthquakeHeat(),
			earthquakePoints(),
			buildings(),
			stateFills(),
			stateBorders(),
		},
	}
}

// magnitudeRamp is shared by the heatmap density ramp and the circle colors.
var magnitudeRamp = []string{
	"rgba(33,102,172,0)",
	"rgb(103,169,207)",
	"rgb(209,229,240)",
	"rgb(253,219,199)",
	"rgb(239,138,98)",
	"rgb(178,24,43)",
}

var densityStops = []float64{0, 0.2, 0.4, 0.6, 0.8, 1}

func earthquakeHeat() Layer {
	density := []any{}
	for i, c := range magnitudeRamp {
		density = append(density, densityStops[i], c)
	}
	return Layer{
		ID:      LayerEarthquakesHeat,
		Type:    TypeHeatmap,
		Source:  SourceEarthquakes,
		MaxZoom: zoom(9),
		Before:  LayerWaterwayLabel,
		Paint: map[string]any{
			"heatmap-weight":    Interpolate(Get("mag"), 0, 0, 6, 1),
			"heatmap-intensity": Interpolate(Zoom(), 0, 1, 9, 3),
			"heatmap-color":     Interpolate(HeatmapDensity(), density...),
			"heatmap-radius":    Interpolate(Zoom(), 0, 2, 9, 20),
			// fades out while the circle layer fades in
			"heatmap-opacity": Interpolate(Zoom(), 7, 1, 9, 0),
		},
	}
}

func earthquakePoints() Layer {
	colors := []any{}
	for i, c := range magnitudeRamp {
		colors = append(colors, i+1, c)
	}
	return Layer{
		ID:      LayerEarthquakesPoint,
		Type:    TypeCircle,
		Source:  SourceEarthquakes,
		MinZoom: zoom(7),
		Before:  LayerWaterwayLabel,
		Paint: map[string]any{
			"circle-radius": Interpolate(Zoom(),
				7, Interpolate(Get("mag"), 1, 1, 6, 4),
				16, Interpolate(Get("mag"), 1, 5, 6, 50),
			),
			"circle-color":        Interpolate(Get("mag"), colors...),
			"circle-stroke-color": "white",
			"circle-stroke-width": 1,
			"circle-opacity":      Interpolate(Zoom(), 7, 0, 8, 1),
		},
	}
}

// buildings snaps from flat to full height between zoom 15 and 15.05.
func buildings() Layer {
	return Layer{
		ID:          LayerBuildings,
		Type:        TypeFillExtrusion,
		Source:      SourceComposite,
		SourceLayer: "building",
		Filter:      []any{"==", "extrude", "true"},
		MinZoom:     zoom(15),
		Before:      BeforeFirstLabel,
		Paint: map[string]any{
			"fill-extrusion-color":   "#aaa",
			"fill-extrusion-height":  Interpolate(Zoom(), 15, 0, 15.05, Get("height")),
			"fill-extrusion-base":    Interpolate(Zoom(), 15, 0, 15.05, Get("min_height")),
			"fill-extrusion-opacity": 0.6,
		},
	}
}

func stateFills() Layer {
	return Layer{
		ID:     LayerStateFills,
		Type:   TypeFill,
		Source: SourceStates,
		Layout: map[string]any{},
		Paint: map[string]any{
			"fill-color": "#627BC1",
			"fill-opacity": []any{"case",
				[]any{"boolean", FeatureState("hover"), false},
				1,
				0.5,
			},
		},
	}
}

func stateBorders() Layer {
	return Layer{
		ID:     LayerStateBorders,
		Type:   TypeLine,
		Source: SourceStates,
		Layout: map[string]any{},
		Paint: map[string]any{
			"line-color": "#627BC1",
			"line-width": 2,
		},
	}
}
