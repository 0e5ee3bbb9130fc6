package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FeatureID is a source-scoped feature identifier: an integer, a string, or
// undefined when the source assigns none. The zero value is undefined.
type FeatureID struct {
	v any // nil, int64 or string
}

// NumberID returns an integer feature id.
func NumberID(n int64) FeatureID { return FeatureID{v: n} }

// StringID returns a string feature id. The empty string is undefined.
func StringID(s string) FeatureID {
	if s == "" {
		return FeatureID{}
	}
	return FeatureID{v: s}
}

// IDOf converts a decoded JSON or GeoJSON id. Integral numbers become number
// ids, strings become string ids, anything else is undefined.
func IDOf(v any) FeatureID {
	switch n := v.(type) {
	case nil:
		return FeatureID{}
	case FeatureID:
		return n
	case string:
		return StringID(n)
	case int:
		return NumberID(int64(n))
	case int64:
		return NumberID(n)
	case int32:
		return NumberID(int64(n))
	case uint64:
		if n > math.MaxInt64 {
			return FeatureID{}
		}
		return NumberID(int64(n))
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > 1<<53 {
			return FeatureID{}
		}
		return NumberID(int64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return NumberID(i)
		}
	}
	return FeatureID{}
}

// Valid reports whether the id is defined.
func (id FeatureID) Valid() bool { return id.v != nil }

// Value returns nil, an int64 or a string.
func (id FeatureID) Value() any { return id.v }

func (id FeatureID) String() string {
	switch v := id.v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	}
	return "<undefined>"
}

func (id FeatureID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.v)
}

func (id *FeatureID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = IDOf(v)
	return nil
}

// FeatureRef addresses one feature in the feature-state store.
type FeatureRef struct {
	Source      string    `json:"source"`
	SourceLayer string    `json:"sourceLayer,omitempty"`
	ID          FeatureID `json:"id"`
}

func (r FeatureRef) String() string {
	if r.SourceLayer != "" {
		return fmt.Sprintf("%s/%s#%s", r.Source, r.SourceLayer, r.ID)
	}
	return fmt.Sprintf("%s#%s", r.Source, r.ID)
}

// Feature is a feature reported under the pointer.
type Feature struct {
	ID          FeatureID      `json:"id"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"sourceLayer,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Ref returns the feature's state-store address.
func (f Feature) Ref() FeatureRef {
	return FeatureRef{Source: f.Source, SourceLayer: f.SourceLayer, ID: f.ID}
}

// State is a partial feature state. Writes merge key by key.
type State map[string]any

// Bool returns the boolean at key, false when absent or not a bool.
func (s State) Bool(key string) bool {
	b, _ := s[key].(bool)
	return b
}

// Hover is the state key the fill-opacity expression reads.
const Hover = "hover"

// HoverState returns {hover: on}.
func HoverState(on bool) State { return State{Hover: on} }
