package scene

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/schema"
)

type fakeActor struct {
	name   string
	keys   []string
	values map[string]float32
	sets   int
}

func newActor(name string, keys ...string) *fakeActor {
	return &fakeActor{name: name, keys: keys, values: make(map[string]float32)}
}

func (a *fakeActor) Name() string         { return a.name }
func (a *fakeActor) Properties() []string { return a.keys }

func (a *fakeActor) SetProperty(key string, v float32) bool {
	for _, k := range a.keys {
		if k == key {
			a.values[key] = v
			a.sets++
			return true
		}
	}
	return false
}

type fakeLevel struct {
	pkg     string
	loaded  bool
	visible bool
	actor   *fakeActor
}

func (l *fakeLevel) PackageName() string { return l.pkg }
func (l *fakeLevel) IsLoaded() bool      { return l.loaded }
func (l *fakeLevel) Visible() bool       { return l.visible }
func (l *fakeLevel) SetVisible(v bool)   { l.visible = v }

func (l *fakeLevel) ScriptActor() Actor {
	if !l.loaded || l.actor == nil {
		return nil
	}
	return l.actor
}

type fakeWorld struct {
	root     *fakeActor
	prefix   string
	levels   []*fakeLevel
	requests []string
}

func (w *fakeWorld) PersistentRoot() Actor   { return w.root }
func (w *fakeWorld) StreamingPrefix() string { return w.prefix }

func (w *fakeWorld) Levels() []Level {
	out := make([]Level, len(w.levels))
	for i, l := range w.levels {
		out[i] = l
	}
	return out
}

func (w *fakeWorld) LoadLevel(l Level) {
	w.requests = append(w.requests, l.PackageName())
}

type fakeParams struct {
	values map[uint64][]float32
	calls  int
}

func (p *fakeParams) GetFrameParameters(hash uint64, out []float32) error {
	p.calls++
	v, ok := p.values[hash]
	if !ok {
		return link.ErrNotFound
	}
	if len(v) != len(out) {
		return link.ErrBufferOverflow
	}
	copy(out, v)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	mainHash   = 100
	levelAHash = 200
)

// fixture is a world with a persistent root exposing "Sun", an unloaded
// Level_A exposing A1 and A2, and a visible Level_B outside the schema.
type fixture struct {
	world  *fakeWorld
	levelA *fakeLevel
	levelB *fakeLevel
	params *fakeParams
	schema *schema.Schema
}

func newFixture() *fixture {
	levelA := &fakeLevel{pkg: "/Game/Maps/Level_A", visible: true, actor: newActor("Level_A", "A1", "A2")}
	levelB := &fakeLevel{pkg: "/Game/Maps/Level_B", loaded: true, visible: true, actor: newActor("Level_B", "B1")}
	return &fixture{
		world: &fakeWorld{
			root:   newActor("Main", "Sun"),
			levels: []*fakeLevel{levelA, levelB},
		},
		levelA: levelA,
		levelB: levelB,
		params: &fakeParams{values: map[uint64][]float32{
			mainHash:   {0.9},
			levelAHash: {0.5, 0.1, 0.2},
		}},
		schema: &schema.Schema{Scenes: []schema.SceneSpec{
			{Name: "Main", Hash: mainHash, Parameters: []schema.ParameterDescriptor{{Key: "Sun"}}},
			{Name: "Level_A", Hash: levelAHash, Parameters: []schema.ParameterDescriptor{{Key: "Sun"}, {Key: "A1"}, {Key: "A2"}}},
		}},
	}
}

func (f *fixture) selector(t *testing.T) *StreamingLevels {
	t.Helper()
	s := NewStreamingLevels(f.params, testLogger())
	require.NoError(t, s.OnSchemaLoaded(f.world, f.schema))
	return s
}

func TestStreamingLevels_OnSchemaLoaded(t *testing.T) {
	f := newFixture()
	s := f.selector(t)

	specs := s.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "validated_loaded", specs[0].State)
	assert.True(t, specs[0].Loaded)
	assert.Empty(t, specs[0].Level)
	assert.Equal(t, "unresolved", specs[1].State)
	assert.False(t, specs[1].Loaded)
	assert.Equal(t, "/Game/Maps/Level_A", specs[1].Level)
	assert.Equal(t, 3, specs[1].ParameterCount)
	assert.Equal(t, Stats{Validations: 1}, s.Stats())
}

func TestStreamingLevels_base_then_level_scenario(t *testing.T) {
	f := newFixture()
	s := f.selector(t)
	root := f.world.root

	res, err := s.ApplyScene(f.world, 0)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
	assert.Equal(t, float32(0.9), root.values["Sun"])
	assert.False(t, f.levelA.visible)
	assert.False(t, f.levelB.visible)

	f.params.values[mainHash] = []float32{0.3}
	rootSets := root.sets
	res, err = s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	assert.Equal(t, ResultLoading, res)
	assert.Equal(t, []string{"/Game/Maps/Level_A"}, f.world.requests)
	assert.Equal(t, rootSets, root.sets, "no parameters while loading")
	assert.Equal(t, "pending_load", s.Specs()[1].State)

	res, err = s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	assert.Equal(t, ResultLoading, res)
	assert.Len(t, f.world.requests, 1, "load is requested once")

	f.levelA.loaded = true
	res, err = s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
	assert.True(t, f.levelA.visible)
	assert.False(t, f.levelB.visible)
	assert.Equal(t, float32(0.5), root.values["Sun"])
	assert.Equal(t, float32(0.1), f.levelA.actor.values["A1"])
	assert.Equal(t, float32(0.2), f.levelA.actor.values["A2"])
	assert.Equal(t, "validated_loaded", s.Specs()[1].State)
	assert.Equal(t, Stats{LoadsRequested: 1, Validations: 2}, s.Stats())
}

func TestStreamingLevels_level_loaded_after_switching_away(t *testing.T) {
	f := newFixture()
	s := f.selector(t)

	res, err := s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	assert.Equal(t, ResultLoading, res)

	res, err = s.ApplyScene(f.world, 0)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)

	f.levelA.loaded = true
	res, err = s.ApplyScene(f.world, 0)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)

	assert.False(t, f.levelA.visible, "loaded level stays hidden while the base scene is selected")
	assert.Empty(t, f.levelA.actor.values)
	spec := s.Specs()[1]
	assert.Equal(t, "pending_load", spec.State)
	assert.False(t, spec.Loaded)
	assert.Len(t, f.world.requests, 1, "no second load request")
	assert.Equal(t, Stats{LoadsRequested: 1, Validations: 1}, s.Stats())
}

func TestStreamingLevels_preserves_descriptor_order(t *testing.T) {
	f := newFixture()
	f.levelA.loaded = true
	f.levelA.actor = newActor("Level_A", "c", "a", "b")
	f.schema.Scenes[1].Parameters = []schema.ParameterDescriptor{{Key: "Sun"}, {Key: "b"}, {Key: "c"}, {Key: "a"}}
	f.params.values[levelAHash] = []float32{1, 2, 3, 4}
	s := f.selector(t)

	_, err := s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), f.world.root.values["Sun"])
	assert.Equal(t, map[string]float32{"b": 2, "c": 3, "a": 4}, f.levelA.actor.values)
}

func TestStreamingLevels_ApplyScene_idempotent(t *testing.T) {
	f := newFixture()
	f.levelA.loaded = true
	s := f.selector(t)

	_, err := s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	values := map[string]float32{}
	for k, v := range f.levelA.actor.values {
		values[k] = v
	}
	stats := s.Stats()
	specs := s.Specs()

	for i := 0; i < 3; i++ {
		res, err := s.ApplyScene(f.world, 1)
		require.NoError(t, err)
		assert.Equal(t, ResultApplied, res)
	}
	assert.Equal(t, values, f.levelA.actor.values)
	assert.Equal(t, stats, s.Stats())
	assert.Equal(t, specs, s.Specs())
}

func TestStreamingLevels_exclusivity(t *testing.T) {
	f := newFixture()
	f.levelA.loaded = true
	levelC := &fakeLevel{pkg: "/Game/Maps/Level_C", loaded: true, visible: true, actor: newActor("Level_C", "C1")}
	f.world.levels = append(f.world.levels, levelC)
	f.schema.Scenes = append(f.schema.Scenes, schema.SceneSpec{
		Name: "Level_C", Hash: 300, Parameters: []schema.ParameterDescriptor{{Key: "Sun"}, {Key: "C1"}},
	})
	f.params.values[300] = []float32{0, 7}
	s := f.selector(t)

	for _, id := range []uint32{1, 2, 1, 0, 2} {
		_, err := s.ApplyScene(f.world, id)
		require.NoError(t, err)
		visible := 0
		for _, l := range f.world.levels {
			if l.visible {
				visible++
			}
		}
		if id == 0 {
			assert.Zero(t, visible)
		} else {
			assert.Equal(t, 1, visible, "scene %d", id)
		}
	}
	assert.True(t, levelC.visible)
}

func TestStreamingLevels_out_of_range(t *testing.T) {
	f := newFixture()
	s := f.selector(t)
	before := s.Specs()

	res, err := s.ApplyScene(f.world, 2)
	assert.ErrorIs(t, err, ErrSceneOutOfRange)
	assert.Equal(t, ResultSkipped, res)
	assert.Equal(t, before, s.Specs())
	assert.Empty(t, f.world.requests)
}

func TestStreamingLevels_buffer_overflow_skips_parameters(t *testing.T) {
	f := newFixture()
	f.levelA.loaded = true
	f.params.values[levelAHash] = []float32{1, 2}
	s := f.selector(t)

	res, err := s.ApplyScene(f.world, 1)
	assert.ErrorIs(t, err, link.ErrBufferOverflow)
	assert.Equal(t, ResultDisplayed, res)
	assert.True(t, f.levelA.visible)
	assert.Empty(t, f.levelA.actor.values)
	assert.Empty(t, f.world.root.values)
}

func TestStreamingLevels_unmatched_scene_dropped(t *testing.T) {
	f := newFixture()
	f.schema.Scenes = append(f.schema.Scenes, schema.SceneSpec{Name: "Ghost", Hash: 400})
	s := f.selector(t)

	assert.Equal(t, "dropped", s.Specs()[2].State)
	assert.Equal(t, 1, s.Stats().DroppedScenes)

	assert.NotPanics(t, func() {
		res, err := s.ApplyScene(f.world, 2)
		assert.ErrorIs(t, err, ErrSceneDropped)
		assert.Equal(t, ResultSkipped, res)
	})
}

func TestStreamingLevels_level_removed_from_world(t *testing.T) {
	f := newFixture()
	f.levelA.loaded = true
	s := f.selector(t)
	f.world.levels = []*fakeLevel{f.levelB}

	_, err := s.ApplyScene(f.world, 1)
	assert.ErrorIs(t, err, ErrLevelGone)
	assert.Equal(t, "dropped", s.Specs()[1].State)

	_, err = s.ApplyScene(f.world, 1)
	assert.ErrorIs(t, err, ErrSceneDropped)

	f.world.levels = []*fakeLevel{f.levelA, f.levelB}
	require.NoError(t, s.OnSchemaLoaded(f.world, f.schema))
	res, err := s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
}

func TestStreamingLevels_validation_failure_displays_only(t *testing.T) {
	f := newFixture()
	f.levelA.loaded = true
	f.levelA.actor = newActor("Level_A", "A1")
	s := f.selector(t)

	assert.True(t, s.Specs()[1].ValidationFailed)
	assert.Equal(t, 1, s.Stats().ValidationFailures)

	res, err := s.ApplyScene(f.world, 1)
	require.NoError(t, err)
	assert.Equal(t, ResultDisplayed, res)
	assert.True(t, f.levelA.visible)
	assert.False(t, f.levelB.visible)
	assert.Empty(t, f.levelA.actor.values)
	assert.Zero(t, f.params.calls)
}

func TestStreamingLevels_stale_persistent_root(t *testing.T) {
	f := newFixture()
	s := f.selector(t)
	f.world.root = newActor("Main", "Sun")

	_, err := s.ApplyScene(f.world, 0)
	assert.ErrorIs(t, err, ErrStaleRoot)
}

func TestStreamingLevels_base_not_loaded_panics(t *testing.T) {
	f := newFixture()
	s := f.selector(t)
	s.specs[0].Loaded = false

	assert.Panics(t, func() { _, _ = s.ApplyScene(f.world, 0) })
}

func TestStreamingLevels_no_schema(t *testing.T) {
	s := NewStreamingLevels(&fakeParams{}, testLogger())
	_, err := s.ApplyScene(&fakeWorld{root: newActor("Main")}, 0)
	assert.ErrorIs(t, err, ErrNoSchema)
	assert.ErrorIs(t, s.OnSchemaLoaded(&fakeWorld{}, nil), ErrNoSchema)
}

func TestLevelName_strips_prefix(t *testing.T) {
	w := &fakeWorld{prefix: "UEDPIE_0_"}
	assert.Equal(t, "Level_A", LevelName(w, &fakeLevel{pkg: "/Game/Maps/UEDPIE_0_Level_A"}))
	assert.Equal(t, "Level_A", LevelName(w, &fakeLevel{pkg: "/Game/Maps/Level_A"}))
}

func TestStreamingLevels_matches_prefixed_levels(t *testing.T) {
	f := newFixture()
	f.world.prefix = "UEDPIE_0_"
	f.levelA.pkg = "/Game/Maps/UEDPIE_0_Level_A"
	s := f.selector(t)
	assert.Equal(t, "unresolved", s.Specs()[1].State)
}

func TestNone_applies_to_root(t *testing.T) {
	f := newFixture()
	s := NewNone(f.params, testLogger())
	f.schema.Scenes = f.schema.Scenes[:1]
	require.NoError(t, s.OnSchemaLoaded(f.world, f.schema))

	res, err := s.ApplyScene(f.world, 0)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
	assert.Equal(t, float32(0.9), f.world.root.values["Sun"])
	assert.True(t, f.levelB.visible, "levels are left alone")

	_, err = s.ApplyScene(f.world, 1)
	assert.ErrorIs(t, err, ErrSceneOutOfRange)
}

func TestNew(t *testing.T) {
	sel, err := New(schema.ModeStreamingLevels, &fakeParams{}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &StreamingLevels{}, sel)

	sel, err = New(schema.ModeNone, &fakeParams{}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &None{}, sel)

	_, err = New(schema.ModeMaps, &fakeParams{}, testLogger())
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}
