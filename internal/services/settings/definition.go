package settings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Setting keys shared by every camera model.
const (
	KeyDebugTelemetry        = "wpDebugTelemetry"
	KeyInferenceTimeout      = "wpInferenceTimeout"
	KeyMaxVideoInferenceTime = "wpMaxVideoInferenceTime"
	KeyVideoPlaybackHost     = "wpVideoPlaybackHost"
	KeyAutoStart             = "wpAutoStart"
)

// Motion detection keys.
const (
	KeySensitivity = "wpSensitivity"
)

// Object detection keys.
const (
	KeyDetectionClasses    = "wpDetectionClasses"
	KeyConfidenceThreshold = "wpConfidenceThreshold"
	KeyInferenceFrameRate  = "wpInferenceFrameRate"
)

// Definition describes one recognized setting.
//
// Coerce converts a raw desired value into the setting's type and reports whether
// the conversion succeeded. Accept, when set, rejects coerced values outside the
// valid range. Either failure resolves the setting to Default.
type Definition struct {
	Key     string
	Default any
	Coerce  func(raw any) (any, bool)
	Accept  func(v any) bool
}

// Schema is the ordered set of settings a device model recognizes.
type Schema []Definition

// Lookup returns the definition for key.
func (s Schema) Lookup(key string) (Definition, bool) {
	for _, d := range s {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Merge returns a schema holding s followed by more. Later definitions replace earlier ones by key.
func (s Schema) Merge(more ...Definition) Schema {
	out := make(Schema, 0, len(s)+len(more))
	out = append(out, s...)
	for _, d := range more {
		replaced := false
		for i := range out {
			if out[i].Key == d.Key {
				out[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, d)
		}
	}
	return out
}

// CommonSchema holds the settings every camera session carries.
func CommonSchema() Schema {
	return Schema{
		Bool(KeyDebugTelemetry, false),
		Int(KeyInferenceTimeout, 5, 1, 3600),
		Int(KeyMaxVideoInferenceTime, 10, 1, 3600),
		String(KeyVideoPlaybackHost, "http://localhost:8094", nil),
		Bool(KeyAutoStart, false),
	}
}

// MotionSchema extends CommonSchema for motion detection cameras.
func MotionSchema() Schema {
	return CommonSchema().Merge(
		String(KeySensitivity, "medium", OneOf("low", "medium", "high")),
	)
}

// ObjectDetectionSchema extends CommonSchema for object detection cameras.
func ObjectDetectionSchema() Schema {
	return CommonSchema().Merge(
		String(KeyDetectionClasses, "person", nil),
		Float(KeyConfidenceThreshold, 70, func(f float64) bool { return f > 0 && f <= 100 }),
		Int(KeyInferenceFrameRate, 2, 1, 30),
	)
}

func Bool(key string, def bool) Definition {
	return Definition{Key: key, Default: def, Coerce: coerceBool}
}

// Int defines an integer setting limited to [min, max].
func Int(key string, def, minValue, maxValue int) Definition {
	return Definition{
		Key:     key,
		Default: def,
		Coerce:  coerceInt,
		Accept: func(v any) bool {
			n := v.(int)
			return n >= minValue && n <= maxValue
		},
	}
}

func Float(key string, def float64, accept func(float64) bool) Definition {
	d := Definition{Key: key, Default: def, Coerce: coerceFloat}
	if accept != nil {
		d.Accept = func(v any) bool { return accept(v.(float64)) }
	}
	return d
}

func String(key, def string, accept func(string) bool) Definition {
	d := Definition{Key: key, Default: def, Coerce: coerceString}
	if accept != nil {
		d.Accept = func(v any) bool { return accept(v.(string)) }
	}
	return d
}

// OneOf accepts values equal to one of the options, ignoring case.
func OneOf(options ...string) func(string) bool {
	return func(s string) bool {
		for _, o := range options {
			if strings.EqualFold(o, s) {
				return true
			}
		}
		return false
	}
}

func coerceBool(raw any) (any, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	return nil, false
}

func coerceInt(raw any) (any, bool) {
	f, ok := toFloat(raw)
	if !ok || f != math.Trunc(f) {
		return nil, false
	}
	return int(f), true
}

func coerceFloat(raw any) (any, bool) {
	f, ok := toFloat(raw)
	if !ok {
		return nil, false
	}
	return f, true
}

func coerceString(raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// isFalsy reports whether a desired value is treated as absent.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0
	case float32:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case json.Number:
		return t.String() == "0"
	case map[string]any:
		return len(t) == 0
	}
	return false
}
