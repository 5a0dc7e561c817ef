package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_Clone_is_deep(t *testing.T) {
	s := &Schema{
		Channels: []string{"Camera_A"},
		Scenes: []SceneSpec{{
			Name:       "Main",
			Parameters: []ParameterDescriptor{{Key: "Mode", Options: []string{"Off", "On"}}},
			Hash:       42,
		}},
	}
	c := s.Clone()
	assert.Equal(t, s, c)

	c.Channels[0] = "changed"
	c.Scenes[0].Parameters[0].Options[1] = "changed"
	c.Scenes[0].Hash = 7
	assert.Equal(t, "Camera_A", s.Channels[0])
	assert.Equal(t, "On", s.Scenes[0].Parameters[0].Options[1])
	assert.Equal(t, uint64(42), s.Scenes[0].Hash)

	var nilSchema *Schema
	assert.Nil(t, nilSchema.Clone())
}

func TestSchema_Scene_lookup(t *testing.T) {
	s := &Schema{Scenes: []SceneSpec{{Name: "Main"}, {Name: "Level_A"}}}
	assert.Equal(t, 2, s.SceneCount())

	id, ok := s.SceneByName("Level_A")
	assert.True(t, ok)
	assert.Equal(t, uint32(1), id)

	_, ok = s.SceneByName("level_a")
	assert.False(t, ok, "scene names are case sensitive")

	_, ok = s.Scene(2)
	assert.False(t, ok)
}

func TestSchema_Validate(t *testing.T) {
	ok := &Schema{Scenes: []SceneSpec{{Name: "Main", Parameters: []ParameterDescriptor{{Key: "a", Max: 1}, {Key: "b", Max: 1}}}}}
	assert.NoError(t, ok.Validate())

	dup := &Schema{Scenes: []SceneSpec{{Name: "Main", Parameters: []ParameterDescriptor{{Key: "a"}, {Key: "a"}}}}}
	assert.ErrorIs(t, dup.Validate(), ErrDuplicateKey)

	unnamed := &Schema{Scenes: []SceneSpec{{}}}
	assert.ErrorIs(t, unnamed.Validate(), ErrEmptySceneName)

	badRange := &Schema{Scenes: []SceneSpec{{Name: "Main", Parameters: []ParameterDescriptor{{Key: "a", Min: 2, Max: 1}}}}}
	assert.ErrorIs(t, badRange.Validate(), ErrBadRange)
}

func TestSceneSpec_Defaults(t *testing.T) {
	sc := SceneSpec{Parameters: []ParameterDescriptor{{Key: "a", Default: 0.5}, {Key: "b", Default: 2}}}
	assert.Equal(t, []float32{0.5, 2}, sc.Defaults())
	assert.Equal(t, []string{"a", "b"}, sc.Keys())
}
