package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vision-gateway-go/pkg/logger"
)

func schemas() map[string]Schema {
	return map[string]Schema{
		"common": CommonSchema(),
		"motion": MotionSchema(),
		"object": ObjectDetectionSchema(),
	}
}

func TestReconcileEmptyDeltaKeepsDefaults(t *testing.T) {
	for name, schema := range schemas() {
		t.Run(name, func(t *testing.T) {
			r := NewReconciler(schema, logger.Nop())
			patch := r.Reconcile(map[string]any{})
			assert.Empty(t, patch)
			for _, d := range schema {
				v, ok := r.Value(d.Key)
				require.True(t, ok)
				assert.Equal(t, d.Default, v, d.Key)
			}
		})
	}
}

func TestReconcileAbsentValuesResolveToDefault(t *testing.T) {
	for name, schema := range schemas() {
		t.Run(name, func(t *testing.T) {
			inputs := map[string]any{
				"nil":           nil,
				"empty wrapper": map[string]any{},
				"nil wrapper":   map[string]any{"value": nil},
				"false":         false,
				"zero":          float64(0),
				"empty string":  "",
				"wrong type":    []any{"x"},
			}
			for label, raw := range inputs {
				r := NewReconciler(schema, logger.Nop())
				delta := make(map[string]any, len(schema))
				for _, d := range schema {
					delta[d.Key] = raw
				}
				patch := r.Reconcile(delta)
				for _, d := range schema {
					assert.Equal(t, d.Default, patch[d.Key], "%s: %s", label, d.Key)
				}
			}
		})
	}
}

func TestReconcileNeverEchoesUnknownKeys(t *testing.T) {
	r := NewReconciler(ObjectDetectionSchema(), logger.Nop())
	patch := r.Reconcile(map[string]any{
		"$version":            7,
		"wpSomethingElse":     "x",
		"rpCameraState":       map[string]any{"value": 1},
		KeyInferenceFrameRate: map[string]any{"value": float64(10)},
	})

	assert.Equal(t, map[string]any{KeyInferenceFrameRate: 10}, patch)
	_, ok := r.Value("wpSomethingElse")
	assert.False(t, ok)
}

func TestReconcileAppliesValidValues(t *testing.T) {
	r := NewReconciler(ObjectDetectionSchema(), logger.Nop())
	patch := r.Reconcile(map[string]any{
		KeyDebugTelemetry:        true,
		KeyInferenceTimeout:      map[string]any{"value": float64(8)},
		KeyVideoPlaybackHost:     "http://player:9000/",
		KeyConfidenceThreshold:   "55.5",
		KeyDetectionClasses:      "person,car",
		KeyMaxVideoInferenceTime: 20,
	})

	assert.Equal(t, true, patch[KeyDebugTelemetry])
	assert.Equal(t, 8, r.Int(KeyInferenceTimeout))
	assert.Equal(t, 20, r.Int(KeyMaxVideoInferenceTime))
	assert.Equal(t, "http://player:9000/", r.String(KeyVideoPlaybackHost))
	assert.InDelta(t, 55.5, r.Float(KeyConfidenceThreshold), 0.0001)
	assert.Equal(t, "person,car", r.String(KeyDetectionClasses))
}

func TestReconcileRejectedValuesFallBack(t *testing.T) {
	r := NewReconciler(MotionSchema(), logger.Nop())
	r.Reconcile(map[string]any{KeySensitivity: "high", KeyInferenceTimeout: 9})
	require.Equal(t, "high", r.String(KeySensitivity))

	patch := r.Reconcile(map[string]any{
		KeySensitivity:      "extreme",
		KeyInferenceTimeout: 2.5,
	})
	assert.Equal(t, "medium", patch[KeySensitivity])
	assert.Equal(t, 5, patch[KeyInferenceTimeout])
}

func TestReconcileRecoversFromPanickingCoercion(t *testing.T) {
	schema := Schema{{
		Key:     "wpBroken",
		Default: "fallback",
		Coerce:  func(any) (any, bool) { panic("boom") },
	}}
	r := NewReconciler(schema, logger.Nop())

	patch := r.Reconcile(map[string]any{"wpBroken": "x"})
	assert.Equal(t, "fallback", patch["wpBroken"])
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewReconciler(CommonSchema(), logger.Nop())
	snap := r.Snapshot()
	snap[KeyAutoStart] = true
	assert.False(t, r.Bool(KeyAutoStart))
}

func TestSchemaMergeReplacesByKey(t *testing.T) {
	s := CommonSchema().Merge(Bool(KeyAutoStart, true))
	d, ok := s.Lookup(KeyAutoStart)
	require.True(t, ok)
	assert.Equal(t, true, d.Default)
	assert.Len(t, s, len(CommonSchema()))
}
