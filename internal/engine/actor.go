// Package engine is an in-memory engine world: a persistent level, streaming
// levels that load asynchronously, and actors whose exposed properties are
// described by tagged structs. It backs the bridge when no real engine is
// attached.
package engine

import (
	"fmt"
	"sync"

	"renderstream-bridge/internal/scene"
	"renderstream-bridge/internal/schema"
)

// Actor is a script actor with exposed float properties.
type Actor struct {
	name        string
	descriptors []schema.ParameterDescriptor
	keys        []string

	mu     sync.RWMutex
	values map[string]float32
}

var _ scene.Actor = (*Actor)(nil)

// NewActor builds an actor from the rs-tagged fields of props. The field
// values become the property defaults.
func NewActor(name string, props any) (*Actor, error) {
	descriptors, _, err := schema.Export(props)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %w", name, err)
	}
	a := &Actor{
		name:        name,
		descriptors: descriptors,
		keys:        make([]string, len(descriptors)),
		values:      make(map[string]float32, len(descriptors)),
	}
	for i, d := range descriptors {
		a.keys[i] = d.Key
		a.values[d.Key] = d.Default
	}
	return a, nil
}

// MustActor is NewActor for statically known property structs.
func MustActor(name string, props any) *Actor {
	a, err := NewActor(name, props)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *Actor) Name() string { return a.name }

// Properties implements scene.Actor.
func (a *Actor) Properties() []string { return a.keys }

// Descriptors returns the exported parameter descriptors.
func (a *Actor) Descriptors() []schema.ParameterDescriptor { return a.descriptors }

// SetProperty implements scene.Actor.
func (a *Actor) SetProperty(key string, v float32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.values[key]; !ok {
		return false
	}
	a.values[key] = v
	return true
}

// Value returns the current value of a property.
func (a *Actor) Value(key string) (float32, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[key]
	return v, ok
}

// Values returns a copy of all property values.
func (a *Actor) Values() map[string]float32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]float32, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}
