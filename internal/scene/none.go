package scene

import (
	"fmt"
	"log/slog"

	"renderstream-bridge/internal/schema"
)

// None drives the persistent root only; levels are left as the engine
// has them.
type None struct {
	selectorBase
}

var _ Selector = (*None)(nil)

func NewNone(params ParameterSource, log *slog.Logger) *None {
	return &None{selectorBase{params: params, log: log}}
}

func (n *None) OnSchemaLoaded(w World, sch *schema.Schema) error {
	if sch == nil {
		return ErrNoSchema
	}
	n.reset(sch, w.PersistentRoot())
	for i := range n.specs {
		n.specs[i].Loaded = true
		n.specs[i].State = StateValidatedLoaded
		n.ValidateLevel(uint32(i))
	}
	return nil
}

func (n *None) ApplyScene(w World, sceneID uint32) (Result, error) {
	if err := n.checkRange(sceneID); err != nil {
		return ResultSkipped, err
	}
	spec := &n.specs[sceneID]
	root := w.PersistentRoot()
	if spec.PersistentRoot != root {
		return ResultSkipped, fmt.Errorf("scene %q: %w", spec.Name, ErrStaleRoot)
	}
	return n.drive(sceneID, root)
}
