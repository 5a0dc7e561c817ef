package schema

import (
	"errors"
	"fmt"

	"github.com/barkimedes/go-deepcopy"
)

// DMXOffsetAuto lets the host pick the DMX offset of a parameter.
const DMXOffsetAuto int32 = -1

// DMXType16BigEndian is the DMX encoding given to every exported parameter.
const DMXType16BigEndian uint32 = 2

// ParameterDescriptor describes one exposed float parameter of a scene.
// The position of a descriptor inside SceneSpec.Parameters is the position of
// its value in the per-frame parameter buffer.
type ParameterDescriptor struct {
	Group       string   `json:"group" yaml:"group"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Key         string   `json:"key" yaml:"key"`
	Min         float32  `json:"min" yaml:"min"`
	Max         float32  `json:"max" yaml:"max"`
	Step        float32  `json:"step" yaml:"step"`
	Default     float32  `json:"default" yaml:"default"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
	DMXOffset   int32    `json:"dmx_offset" yaml:"dmx_offset"`
	DMXType     uint32   `json:"dmx_type" yaml:"dmx_type"`
}

// SceneSpec is a selectable scene and its ordered parameter list.
// Hash is assigned by the host when the schema is set and is only stable for
// that schema generation.
type SceneSpec struct {
	Name       string                `json:"name" yaml:"name"`
	Parameters []ParameterDescriptor `json:"parameters" yaml:"parameters"`
	Hash       uint64                `json:"hash" yaml:"-"`
}

// Schema is the contract negotiated with the host: the output channels and
// the selectable scenes, in scene id order.
type Schema struct {
	Channels []string    `json:"channels" yaml:"channels"`
	Scenes   []SceneSpec `json:"scenes" yaml:"scenes"`
}

var (
	// ErrEmptySceneName is returned by Validate for a scene without a name.
	ErrEmptySceneName = errors.New("scene has no name")

	// ErrDuplicateKey is returned by Validate when two parameters of a scene
	// share a key.
	ErrDuplicateKey = errors.New("duplicate parameter key")

	// ErrBadRange is returned by Validate when a parameter has min > max or a
	// negative step.
	ErrBadRange = errors.New("invalid parameter range")
)

// Clone returns a deep copy of s. Schemas handed out by the gateway are
// shared read-only, callers that need to mutate one must clone it first.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	return deepcopy.MustAnything(s).(*Schema)
}

// SceneCount returns the number of scenes, zero for a nil schema.
func (s *Schema) SceneCount() int {
	if s == nil {
		return 0
	}
	return len(s.Scenes)
}

// Scene returns the scene with the given id.
func (s *Schema) Scene(id uint32) (SceneSpec, bool) {
	if s == nil || int(id) >= len(s.Scenes) {
		return SceneSpec{}, false
	}
	return s.Scenes[id], true
}

// SceneByName returns the id of the scene with the given name.
func (s *Schema) SceneByName(name string) (uint32, bool) {
	if s == nil {
		return 0, false
	}
	for i, sc := range s.Scenes {
		if sc.Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// Validate checks the structural rules the host relies on: named scenes,
// unique keys per scene and sane ranges.
func (s *Schema) Validate() error {
	for i, sc := range s.Scenes {
		if sc.Name == "" {
			return fmt.Errorf("scene %d: %w", i, ErrEmptySceneName)
		}
		seen := make(map[string]struct{}, len(sc.Parameters))
		for _, p := range sc.Parameters {
			if _, dup := seen[p.Key]; dup {
				return fmt.Errorf("scene %q key %q: %w", sc.Name, p.Key, ErrDuplicateKey)
			}
			seen[p.Key] = struct{}{}
			if p.Min > p.Max || p.Step < 0 {
				return fmt.Errorf("scene %q key %q: %w", sc.Name, p.Key, ErrBadRange)
			}
		}
	}
	return nil
}

// Keys returns the parameter keys of the scene in buffer order.
func (sc SceneSpec) Keys() []string {
	keys := make([]string, len(sc.Parameters))
	for i, p := range sc.Parameters {
		keys[i] = p.Key
	}
	return keys
}

// Defaults returns the default values of the scene in buffer order.
func (sc SceneSpec) Defaults() []float32 {
	values := make([]float32, len(sc.Parameters))
	for i, p := range sc.Parameters {
		values[i] = p.Default
	}
	return values
}
