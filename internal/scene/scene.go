// Package scene resolves the host's scene id to engine levels, drives
// on-demand level loading and applies the scene's exposed parameters each
// tick.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"renderstream-bridge/internal/schema"
)

// Actor is an engine object carrying exposed properties.
type Actor interface {
	Name() string
	// Properties returns the exposed property keys in declaration order.
	Properties() []string
	// SetProperty assigns an exposed property; false when the key is not
	// declared by the actor.
	SetProperty(key string, v float32) bool
}

// Level is a loadable scene unit. References held by the selector are
// non-owning: a level may vanish from the world at any time.
type Level interface {
	PackageName() string
	IsLoaded() bool
	Visible() bool
	SetVisible(visible bool)
	// ScriptActor returns the level's root actor, nil while unloaded.
	ScriptActor() Actor
}

// World is the engine's scene graph as seen by the selector.
type World interface {
	PersistentRoot() Actor
	StreamingPrefix() string
	Levels() []Level
	// LoadLevel requests an asynchronous load. Completion is observed
	// through Level.IsLoaded.
	LoadLevel(l Level)
}

// ParameterSource fills the live parameter values for a scene hash.
type ParameterSource interface {
	GetFrameParameters(hash uint64, out []float32) error
}

// State is the lifecycle state of a scene binding.
type State int

const (
	StateUnresolved State = iota
	StatePendingLoad
	StateValidatedLoaded
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StatePendingLoad:
		return "pending_load"
	case StateValidatedLoaded:
		return "validated_loaded"
	case StateDropped:
		return "dropped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is what ApplyScene did this tick.
type Result int

const (
	// ResultApplied means the scene is shown and its parameters were set.
	ResultApplied Result = iota
	// ResultLoading means the scene's level is loading; nothing was applied.
	ResultLoading
	// ResultDisplayed means the scene is shown but parameters were not
	// driven, either because validation failed or the values could not be
	// fetched.
	ResultDisplayed
	// ResultSkipped means nothing changed this tick.
	ResultSkipped
)

func (r Result) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultLoading:
		return "loading"
	case ResultDisplayed:
		return "displayed"
	default:
		return "skipped"
	}
}

var (
	// ErrSceneOutOfRange is returned for a scene id beyond the schema.
	ErrSceneOutOfRange = errors.New("scene id out of range")

	// ErrSceneDropped is returned for a scene that matched no level when
	// the schema was loaded.
	ErrSceneDropped = errors.New("scene dropped: no matching level")

	// ErrLevelGone is returned when the bound level left the world. The
	// scene stays dropped until the next schema load.
	ErrLevelGone = errors.New("bound level no longer in world")

	// ErrStaleRoot is returned when the world's persistent root differs
	// from the one bound at schema load.
	ErrStaleRoot = errors.New("persistent root changed since schema load")

	// ErrNoSchema is returned by ApplyScene before OnSchemaLoaded.
	ErrNoSchema = errors.New("no schema loaded")

	// ErrUnsupportedMode is returned for selector modes with no runtime
	// selector.
	ErrUnsupportedMode = errors.New("scene selector mode has no runtime selector")
)

// SchemaSpec is the runtime binding of one schema scene.
type SchemaSpec struct {
	SceneIndex       uint32
	Name             string
	Level            Level
	PersistentRoot   Actor
	Loaded           bool
	ParameterCount   int
	Hash             uint64
	State            State
	ValidationFailed bool
}

// Base reports whether s binds the persistent level only.
func (s *SchemaSpec) Base() bool {
	return s.Level == nil && s.State != StateDropped
}

// SpecView is a read-only snapshot of a SchemaSpec for reporting.
type SpecView struct {
	SceneIndex       uint32 `json:"scene_index"`
	Name             string `json:"name"`
	Level            string `json:"level,omitempty"`
	State            string `json:"state"`
	Loaded           bool   `json:"loaded"`
	ParameterCount   int    `json:"parameter_count"`
	ValidationFailed bool   `json:"validation_failed"`
}

// Stats are monotonic selector counters.
type Stats struct {
	LoadsRequested     int `json:"loads_requested"`
	Validations        int `json:"validations"`
	ValidationFailures int `json:"validation_failures"`
	DroppedScenes      int `json:"dropped_scenes"`
}

// Selector maps the host's scene id onto the engine world.
type Selector interface {
	OnSchemaLoaded(w World, s *schema.Schema) error
	ApplyScene(w World, sceneID uint32) (Result, error)
	Specs() []SpecView
	Stats() Stats
}

// New returns the selector for a schema generation mode.
func New(mode schema.Mode, params ParameterSource, log *slog.Logger) (Selector, error) {
	switch mode {
	case schema.ModeNone:
		return NewNone(params, log), nil
	case schema.ModeStreamingLevels:
		return NewStreamingLevels(params, log), nil
	default:
		return nil, fmt.Errorf("%s: %w", mode, ErrUnsupportedMode)
	}
}

// LevelName returns the name a level is matched against scene names by:
// the short package name with the world's streaming prefix removed.
func LevelName(w World, l Level) string {
	return strings.TrimPrefix(path.Base(l.PackageName()), w.StreamingPrefix())
}

func findLevelByName(w World, name string) Level {
	for _, l := range w.Levels() {
		if LevelName(w, l) == name {
			return l
		}
	}
	return nil
}

func containsLevel(w World, target Level) bool {
	for _, l := range w.Levels() {
		if l == target {
			return true
		}
	}
	return false
}
