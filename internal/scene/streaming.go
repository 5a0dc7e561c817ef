package scene

import (
	"fmt"
	"log/slog"

	"renderstream-bridge/internal/schema"
)

// StreamingLevels selects scenes by showing one streaming level of the
// world at a time. Scene 0 is the persistent level when no streaming level
// carries its name.
type StreamingLevels struct {
	selectorBase
}

var _ Selector = (*StreamingLevels)(nil)

// NewStreamingLevels returns a selector with no schema.
func NewStreamingLevels(params ParameterSource, log *slog.Logger) *StreamingLevels {
	return &StreamingLevels{selectorBase{params: params, log: log}}
}

// OnSchemaLoaded rebuilds the binding table. Loaded levels and the base
// scene are validated immediately; scenes matching no level are dropped.
func (s *StreamingLevels) OnSchemaLoaded(w World, sch *schema.Schema) error {
	if sch == nil {
		return ErrNoSchema
	}
	s.reset(sch, w.PersistentRoot())

	for i, sc := range sch.Scenes {
		id := uint32(i)
		spec := &s.specs[i]
		level := findLevelByName(w, sc.Name)
		switch {
		case level == nil && i == 0:
			spec.Loaded = true
			spec.State = StateValidatedLoaded
			s.ValidateLevel(id)
		case level == nil:
			spec.State = StateDropped
			s.stats.DroppedScenes++
			s.log.Warn("no streaming level matches scene, dropping it", slog.String("scene", sc.Name))
		case level.IsLoaded():
			spec.Level = level
			spec.Loaded = true
			spec.State = StateValidatedLoaded
			s.ValidateLevel(id)
		default:
			spec.Level = level
			s.log.Info("skipping validation of unloaded streaming level", slog.String("scene", sc.Name))
		}
	}
	return nil
}

// ApplyScene makes sceneID the visible scene and drives its parameters.
// A scene whose level is not loaded yet requests the load once and
// reports ResultLoading until the level is in.
func (s *StreamingLevels) ApplyScene(w World, sceneID uint32) (Result, error) {
	if err := s.checkRange(sceneID); err != nil {
		return ResultSkipped, err
	}
	spec := &s.specs[sceneID]
	if spec.State == StateDropped {
		return ResultSkipped, fmt.Errorf("scene %q: %w", spec.Name, ErrSceneDropped)
	}
	if spec.Level != nil && !containsLevel(w, spec.Level) {
		s.log.Warn("bound level left the world, unbinding scene",
			slog.String("scene", spec.Name),
			slog.String("level", spec.Level.PackageName()))
		spec.Level = nil
		spec.State = StateDropped
		return ResultSkipped, fmt.Errorf("scene %q: %w", spec.Name, ErrLevelGone)
	}

	if !spec.Loaded {
		if spec.Level == nil {
			panic(fmt.Sprintf("scene: base scene %d applied before it was loaded", sceneID))
		}
		if !spec.Level.IsLoaded() {
			if spec.State != StatePendingLoad {
				spec.State = StatePendingLoad
				s.stats.LoadsRequested++
				s.log.Info("loading level", slog.String("level", spec.Level.PackageName()))
				w.LoadLevel(spec.Level)
			}
			return ResultLoading, nil
		}
		spec.Loaded = true
		spec.State = StateValidatedLoaded
		s.ValidateLevel(sceneID)
	}

	if spec.Level == nil {
		root := w.PersistentRoot()
		if spec.PersistentRoot != root {
			return ResultSkipped, fmt.Errorf("scene %q: %w", spec.Name, ErrStaleRoot)
		}
		res, err := s.drive(sceneID, root)
		for _, l := range w.Levels() {
			l.SetVisible(false)
		}
		return res, err
	}

	res, err := ResultLoading, error(nil)
	for _, l := range w.Levels() {
		if l != spec.Level {
			l.SetVisible(false)
			continue
		}
		if l.IsLoaded() {
			l.SetVisible(true)
			res, err = s.drive(sceneID, spec.PersistentRoot, l.ScriptActor())
		}
	}
	return res, err
}
