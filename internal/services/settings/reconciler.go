package settings

import (
	"fmt"
	"maps"
	"sync"

	"github.com/rs/zerolog"
)

// versionKey marks the shadow document version inside a desired delta.
const versionKey = "$version"

// Reconciler holds a device's typed settings and applies desired-property deltas to them.
type Reconciler struct {
	mu     sync.RWMutex
	schema Schema
	values map[string]any
	logger zerolog.Logger
}

// NewReconciler returns a reconciler with every setting at its default.
func NewReconciler(schema Schema, logger zerolog.Logger) *Reconciler {
	r := &Reconciler{
		schema: schema,
		values: make(map[string]any, len(schema)),
		logger: logger,
	}
	for _, d := range schema {
		r.values[d.Key] = d.Default
	}
	return r
}

// Reconcile applies delta and returns the patch of recognized keys with their resolved values.
// Falsy, mistyped or rejected values resolve to the setting's default. Unknown keys are never echoed.
func (r *Reconciler) Reconcile(delta map[string]any) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	patch := make(map[string]any)
	for key, raw := range delta {
		if key == versionKey {
			continue
		}
		def, ok := r.schema.Lookup(key)
		if !ok {
			r.logger.Debug().Str("key", key).Msg("Ignoring unrecognized desired property")
			continue
		}
		value := r.resolve(def, raw)
		r.values[key] = value
		patch[key] = value
	}
	return patch
}

// resolve never panics; a failing coercion yields the default.
func (r *Reconciler) resolve(def Definition, raw any) (value any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Err(fmt.Errorf("reconcile %s: %v", def.Key, rec)).
				Msg("Desired property could not be applied, using default")
			value = def.Default
		}
	}()

	raw = unwrap(raw)
	if isFalsy(raw) {
		return def.Default
	}
	v, ok := def.Coerce(raw)
	if !ok {
		r.logger.Debug().Str("key", def.Key).Interface("value", raw).Msg("Desired property has wrong type, using default")
		return def.Default
	}
	if def.Accept != nil && !def.Accept(v) {
		r.logger.Debug().Str("key", def.Key).Interface("value", v).Msg("Desired property out of range, using default")
		return def.Default
	}
	return v
}

// unwrap accepts either a raw value or a {"value": x} wrapper.
func unwrap(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	v, ok := m["value"]
	if !ok {
		return nil
	}
	return v
}

// Snapshot returns a copy of all current values.
func (r *Reconciler) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.values)
}

// Schema returns the definitions this reconciler recognizes.
func (r *Reconciler) Schema() Schema {
	return r.schema
}

func (r *Reconciler) Value(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

func (r *Reconciler) Bool(key string) bool {
	v, _ := r.Value(key)
	b, _ := v.(bool)
	return b
}

func (r *Reconciler) Int(key string) int {
	v, _ := r.Value(key)
	n, _ := v.(int)
	return n
}

func (r *Reconciler) Float(key string) float64 {
	v, _ := r.Value(key)
	f, _ := v.(float64)
	return f
}

func (r *Reconciler) String(key string) string {
	v, _ := r.Value(key)
	s, _ := v.(string)
	return s
}
