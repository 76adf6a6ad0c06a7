package litterbox

import (
	"encoding/json"
	"fmt"
)

// RawStatus is one status report from the device, keyed by DPS identifier.
// A nil DPS means the report carried no status collection.
type RawStatus struct {
	DPS map[string]any
}

// SemanticState is the named, display-ready view of a RawStatus.
type SemanticState map[string]any

const (
	ResetField             = "1"
	WeightField            = "6"
	GravitySensorField     = "9"
	OperationField         = "110"
	unknownFieldNamePrefix = "field_"
)

// FieldNames maps DPS identifiers to field names.
var FieldNames = map[string]string{
	"1":   "reset",
	"2":   "mode",
	"3":   "unknown_3",
	"4":   "unknown_4",
	"5":   "cleaning_delay",
	"6":   "last_weight",
	"7":   "usage_today",
	"8":   "last_duration",
	"9":   "gravity_sensor_problem",
	"101": "unknown_101",
	"102": "led_color",
	"103": "cleaning_count",
	"105": "unknown_105",
	"106": "dash_brightness",
	"107": "light_brightness",
	"108": "unknown_108",
	"109": "control_source",
	"110": "operation",
}

func FieldName(id string) string {
	if name, ok := FieldNames[id]; ok {
		return name
	}
	return unknownFieldNamePrefix + id
}

// FormatValue applies the per-field display transform. The weight is reported
// in tenths of a kilogram.
func FormatValue(id string, value any) any {
	if id != WeightField {
		return value
	}
	tenths, ok := numeric(value)
	if !ok {
		return value
	}
	return fmt.Sprintf("%.1f kg", tenths/10)
}

// MapFields names every field of status and formats its value. Unknown
// identifiers are kept under a field_<id> name.
func MapFields(status *RawStatus) SemanticState {
	state := SemanticState{}
	if status == nil || status.DPS == nil {
		return state
	}
	for id, value := range status.DPS {
		state[FieldName(id)] = FormatValue(id, value)
	}
	return state
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
