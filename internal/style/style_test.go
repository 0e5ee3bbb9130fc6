package style

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	doc := Default(DefaultSources())
	require.NoError(t, doc.Validate())

	ids := make([]string, 0, len(doc.Layers))
	for _, l := range doc.Layers {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{
		LayerEarthquakesHeat,
		LayerEarthquakesPoint,
		LayerBuildings,
		LayerStateFills,
		LayerStateBorders,
	}, ids)
}

func TestDefault_Placement(t *testing.T) {
	doc := Default(DefaultSources())

	heat, ok := doc.Layer(LayerEarthquakesHeat)
	require.True(t, ok)
	assert.Equal(t, LayerWaterwayLabel, heat.Before)
	assert.Equal(t, 9.0, *heat.MaxZoom)

	point, ok := doc.Layer(LayerEarthquakesPoint)
	require.True(t, ok)
	assert.Equal(t, LayerWaterwayLabel, point.Before)
	assert.Equal(t, 7.0, *point.MinZoom)

	b, ok := doc.Layer(LayerBuildings)
	require.True(t, ok)
	assert.Equal(t, BeforeFirstLabel, b.Before)
	assert.Equal(t, "building", b.SourceLayer)
	assert.Equal(t, []any{"==", "extrude", "true"}, b.Filter)

	fills, ok := doc.Layer(LayerStateFills)
	require.True(t, ok)
	assert.Empty(t, fills.Before)
}

func TestBuildingHeight_SnapsAtBoundaries(t *testing.T) {
	b, ok := Default(DefaultSources()).Layer(LayerBuildings)
	require.True(t, ok)
	props := map[string]any{"height": 42.5, "min_height": 3}

	for _, key := range []string{"fill-extrusion-height", "fill-extrusion-base"} {
		v, err := EvalNumber(b.Paint[key], EvalContext{Zoom: 15, Properties: props})
		require.NoError(t, err)
		assert.Equal(t, 0.0, v, key)
	}

	h, err := EvalNumber(b.Paint["fill-extrusion-height"], EvalContext{Zoom: 15.05, Properties: props})
	require.NoError(t, err)
	assert.Equal(t, 42.5, h)

	base, err := EvalNumber(b.Paint["fill-extrusion-base"], EvalContext{Zoom: 15.05, Properties: props})
	require.NoError(t, err)
	assert.Equal(t, 3.0, base)

	// beyond the last stop the data value holds
	h, err = EvalNumber(b.Paint["fill-extrusion-height"], EvalContext{Zoom: 18, Properties: props})
	require.NoError(t, err)
	assert.Equal(t, 42.5, h)
}

func TestStateFillOpacity_FollowsHoverState(t *testing.T) {
	fills, ok := Default(DefaultSources()).Layer(LayerStateFills)
	require.True(t, ok)
	expr := fills.Paint["fill-opacity"]

	v, err := EvalNumber(expr, EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	v, err = EvalNumber(expr, EvalContext{FeatureState: map[string]any{"hover": false}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	v, err = EvalNumber(expr, EvalContext{FeatureState: map[string]any{"hover": true}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestEarthquakeOpacity_CrossFade(t *testing.T) {
	doc := Default(DefaultSources())
	heat, _ := doc.Layer(LayerEarthquakesHeat)
	point, _ := doc.Layer(LayerEarthquakesPoint)

	tests := []struct {
		zoom  float64
		heat  float64
		point float64
	}{
		{zoom: 4, heat: 1, point: 0},
		{zoom: 7, heat: 1, point: 0},
		{zoom: 7.5, heat: 0.75, point: 0.5},
		{zoom: 8, heat: 0.5, point: 1},
		{zoom: 9, heat: 0, point: 1},
	}
	for _, tt := range tests {
		ctx := EvalContext{Zoom: tt.zoom}
		h, err := EvalNumber(heat.Paint["heatmap-opacity"], ctx)
		require.NoError(t, err)
		p, err := EvalNumber(point.Paint["circle-opacity"], ctx)
		require.NoError(t, err)
		assert.InDelta(t, tt.heat, h, 1e-9, "heat at zoom %v", tt.zoom)
		assert.InDelta(t, tt.point, p, 1e-9, "point at zoom %v", tt.zoom)
	}
}

func TestCircleRadius_NestedInterpolate(t *testing.T) {
	point, _ := Default(DefaultSources()).Layer(LayerEarthquakesPoint)
	expr := point.Paint["circle-radius"]

	v, err := EvalNumber(expr, EvalContext{Zoom: 7, Properties: map[string]any{"mag": 6}})
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	v, err = EvalNumber(expr, EvalContext{Zoom: 16, Properties: map[string]any{"mag": 6}})
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)

	// halfway in zoom between 4 and 50
	v, err = EvalNumber(expr, EvalContext{Zoom: 11.5, Properties: map[string]any{"mag": 6}})
	require.NoError(t, err)
	assert.InDelta(t, 27.0, v, 1e-9)
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr any
		want error
	}{
		{"empty", []any{}, ErrExpression},
		{"non-string operator", []any{1, 2}, ErrExpression},
		{"unknown operator", []any{"rgb", 1, 2, 3}, ErrUnsupported},
		{"get without key", []any{"get"}, ErrExpression},
		{"step interpolation", []any{"interpolate", []any{"exponential", 2}, []any{"zoom"}, 0, 0, 1, 1}, ErrUnsupported},
		{"descending stops", Interpolate(Zoom(), 5, 0, 1, 1), ErrExpression},
		{"case without fallback", []any{"case", true, 1}, ErrExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.expr, EvalContext{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEval_ColorRampNotNumeric(t *testing.T) {
	heat, _ := Default(DefaultSources()).Layer(LayerEarthquakesHeat)
	_, err := EvalNumber(heat.Paint["heatmap-color"], EvalContext{HeatmapDensity: 0.3})
	assert.ErrorIs(t, err, ErrExpression)
}

func TestFirstLabelLayer(t *testing.T) {
	layers := []Layer{
		{ID: "land", Type: TypeBackground},
		{ID: "road-oneway-arrow", Type: TypeSymbol, Layout: map[string]any{"icon-image": "oneway"}},
		{ID: "road-label", Type: TypeSymbol, Layout: map[string]any{"text-field": []any{"get", "name"}}},
		{ID: "waterway-label", Type: TypeSymbol, Layout: map[string]any{"text-field": "{name}"}},
	}
	assert.Equal(t, "road-label", FirstLabelLayer(layers))
	assert.Empty(t, FirstLabelLayer(layers[:2]))
	assert.Empty(t, FirstLabelLayer(nil))
}

func TestValidate_Rejects(t *testing.T) {
	doc := Default(DefaultSources())
	doc.Layers = append(doc.Layers, Layer{ID: LayerStateFills, Type: TypeFill, Source: SourceStates})
	assert.ErrorIs(t, doc.Validate(), ErrInvalidDocument)

	doc = Default(DefaultSources())
	doc.Layers[0].Source = "missing"
	assert.ErrorIs(t, doc.Validate(), ErrInvalidDocument)

	doc = Default(DefaultSources())
	doc.Sources = append(doc.Sources, doc.Sources[0])
	assert.ErrorIs(t, doc.Validate(), ErrInvalidDocument)
}

func TestLoad_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	doc := Default(Sources{Earthquakes: "https://example.test/q.geojson", States: "https://example.test/s.geojson"})

	for _, tc := range []struct {
		file   string
		asYAML bool
	}{
		{"style.json", false},
		{"style.yaml", true},
	} {
		t.Run(tc.file, func(t *testing.T) {
			data, err := Marshal(doc, tc.asYAML)
			require.NoError(t, err)
			path := filepath.Join(dir, tc.file)
			require.NoError(t, os.WriteFile(path, data, 0644))

			loaded, err := Load(path)
			require.NoError(t, err)
			require.Len(t, loaded.Layers, len(doc.Layers))
			assert.Equal(t, "https://example.test/q.geojson", loaded.Sources[0].Data)

			b, ok := loaded.Layer(LayerBuildings)
			require.True(t, ok)
			v, err := EvalNumber(b.Paint["fill-extrusion-height"], EvalContext{Zoom: 15.05, Properties: map[string]any{"height": 12}})
			require.NoError(t, err)
			assert.Equal(t, 12.0, v)
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"layers":[{"id":"x","type":"fill","source":"nope"}]}`), 0644))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLayerJSON_OmitsEmptyPlacement(t *testing.T) {
	fills, _ := Default(DefaultSources()).Layer(LayerStateBorders)
	data, err := json.Marshal(fills)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "before")
	assert.Contains(t, string(data), `"line-width":2`)
}
