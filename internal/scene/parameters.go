package scene

import (
	"errors"
	"fmt"
	"log/slog"

	"renderstream-bridge/internal/schema"
)

var (
	// ErrMissingProperty is a validation failure for a descriptor key that
	// no root declares.
	ErrMissingProperty = errors.New("parameter not declared by any root")

	// ErrParameterCount is a validation failure for a descriptor count that
	// differs from the number of exposed properties.
	ErrParameterCount = errors.New("parameter count mismatch")
)

// selectorBase holds the binding table shared by every selector. It is
// owned by one goroutine and never locked.
type selectorBase struct {
	params ParameterSource
	log    *slog.Logger

	schema  *schema.Schema
	specs   []SchemaSpec
	buffers [][]float32
	stats   Stats
}

func (b *selectorBase) reset(s *schema.Schema, root Actor) {
	b.schema = s
	b.specs = make([]SchemaSpec, len(s.Scenes))
	b.buffers = make([][]float32, len(s.Scenes))
	for i, sc := range s.Scenes {
		b.specs[i] = SchemaSpec{
			SceneIndex:     uint32(i),
			Name:           sc.Name,
			PersistentRoot: root,
			ParameterCount: len(sc.Parameters),
			Hash:           sc.Hash,
		}
		b.buffers[i] = make([]float32, len(sc.Parameters))
	}
}

func (b *selectorBase) checkRange(sceneID uint32) error {
	if b.schema == nil {
		return ErrNoSchema
	}
	if int(sceneID) >= len(b.specs) {
		b.log.Error("unable to get frame parameters",
			slog.Uint64("scene_id", uint64(sceneID)),
			slog.Int("scene_count", len(b.specs)))
		return fmt.Errorf("scene id %d >= %d: %w", sceneID, len(b.specs), ErrSceneOutOfRange)
	}
	return nil
}

func (b *selectorBase) roots(spec *SchemaSpec) []Actor {
	roots := []Actor{spec.PersistentRoot}
	if spec.Level != nil {
		roots = append(roots, spec.Level.ScriptActor())
	}
	return roots
}

// ValidateLevel checks the scene's descriptors against the exposed
// properties of its roots. A failing scene is still displayed but its
// parameters are not driven.
func (b *selectorBase) ValidateLevel(sceneID uint32) bool {
	sc := b.schema.Scenes[sceneID]
	spec := &b.specs[sceneID]
	b.stats.Validations++
	b.log.Info("validating schema", slog.String("scene", sc.Name), slog.Int("parameters", len(sc.Parameters)))

	if err := validateParameters(sc, b.roots(spec)); err != nil {
		spec.ValidationFailed = true
		b.stats.ValidationFailures++
		b.log.Error("failed to validate schema", slog.String("scene", sc.Name), slog.String("error", err.Error()))
		return false
	}
	spec.ValidationFailed = false
	return true
}

func validateParameters(sc schema.SceneSpec, roots []Actor) error {
	declared := make(map[string]struct{})
	for _, r := range roots {
		if r == nil {
			continue
		}
		for _, k := range r.Properties() {
			declared[k] = struct{}{}
		}
	}
	for _, p := range sc.Parameters {
		if _, ok := declared[p.Key]; !ok {
			return fmt.Errorf("%q: %w", p.Key, ErrMissingProperty)
		}
	}
	if len(declared) != len(sc.Parameters) {
		return fmt.Errorf("%d exposed, %d described: %w", len(declared), len(sc.Parameters), ErrParameterCount)
	}
	return nil
}

// ApplyParameters fetches the scene's live values and assigns them in
// descriptor order to the first root declaring each key.
func (b *selectorBase) ApplyParameters(sceneID uint32, roots []Actor) error {
	sc := b.schema.Scenes[sceneID]
	buf := b.buffers[sceneID]
	if len(buf) == 0 {
		return nil
	}
	if err := b.params.GetFrameParameters(b.specs[sceneID].Hash, buf); err != nil {
		return fmt.Errorf("get frame parameters for %s: %w", sc.Name, err)
	}
	for i, p := range sc.Parameters {
		for _, r := range roots {
			if r != nil && r.SetProperty(p.Key, buf[i]) {
				break
			}
		}
	}
	return nil
}

func (b *selectorBase) drive(sceneID uint32, roots ...Actor) (Result, error) {
	if b.specs[sceneID].ValidationFailed {
		return ResultDisplayed, nil
	}
	if err := b.ApplyParameters(sceneID, roots); err != nil {
		return ResultDisplayed, err
	}
	return ResultApplied, nil
}

// Specs returns a snapshot of the binding table.
func (b *selectorBase) Specs() []SpecView {
	out := make([]SpecView, len(b.specs))
	for i := range b.specs {
		s := &b.specs[i]
		out[i] = SpecView{
			SceneIndex:       s.SceneIndex,
			Name:             s.Name,
			State:            s.State.String(),
			Loaded:           s.Loaded,
			ParameterCount:   s.ParameterCount,
			ValidationFailed: s.ValidationFailed,
		}
		if s.Level != nil {
			out[i].Level = s.Level.PackageName()
		}
	}
	return out
}

// Stats returns the counters since the selector was created.
func (b *selectorBase) Stats() Stats {
	return b.stats
}
