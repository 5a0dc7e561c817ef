package schema

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Mode selects how levels are turned into selectable scenes.
type Mode int

const (
	// ModeNone exposes the default map as the only scene.
	ModeNone Mode = iota
	// ModeStreamingLevels exposes the default map as scene 0 followed by
	// one scene per streaming sub-level.
	ModeStreamingLevels
	// ModeMaps exposes every known level as a scene.
	ModeMaps
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeStreamingLevels:
		return "streaming_levels"
	case ModeMaps:
		return "maps"
	default:
		return "unknown"
	}
}

// ParseMode parses the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return ModeNone, nil
	case "streaming_levels", "streaminglevels":
		return ModeStreamingLevels, nil
	case "maps":
		return ModeMaps, nil
	}
	return ModeNone, fmt.Errorf("unknown scene selector %q", s)
}

// LevelCache is the per-level metadata the generator works from: the
// channels defined in the level, the exposed parameters of its script
// actor and the paths of its streaming sub-levels.
type LevelCache struct {
	Path      string
	Channels  []string
	Params    []ParameterDescriptor
	SubLevels []string
}

var (
	// ErrNoDefaultMap is returned when the mode needs a default map and
	// none of the caches matches it.
	ErrNoDefaultMap = errors.New("no default map defined")

	// ErrMissingLevel is returned when a sub-level has no cache.
	ErrMissingLevel = errors.New("sub-level has no cache")
)

// ShortName returns the last element of a level package path.
func ShortName(levelPath string) string {
	return path.Base(levelPath)
}

// Generate builds a schema from level caches. Parameters of a parent level
// come first in every child scene, matching the order the runtime resolves
// them in (persistent root, then level script actor).
func Generate(mode Mode, defaultMap string, caches []LevelCache) (*Schema, error) {
	byPath := make(map[string]*LevelCache, len(caches))
	channelSet := make(map[string]struct{})
	for i := range caches {
		c := &caches[i]
		byPath[c.Path] = c
		for _, ch := range c.Channels {
			channelSet[ch] = struct{}{}
		}
	}

	s := &Schema{Channels: make([]string, 0, len(channelSet))}
	for ch := range channelSet {
		s.Channels = append(s.Channels, ch)
	}
	sort.Strings(s.Channels)

	switch mode {
	case ModeNone:
		main, ok := byPath[defaultMap]
		if !ok {
			return nil, ErrNoDefaultMap
		}
		s.Scenes = []SceneSpec{generateScene(main, nil)}

	case ModeStreamingLevels:
		main, ok := byPath[defaultMap]
		if !ok {
			return nil, ErrNoDefaultMap
		}
		s.Scenes = append(s.Scenes, generateScene(main, nil))
		for _, sub := range main.SubLevels {
			c, ok := byPath[sub]
			if !ok {
				return nil, fmt.Errorf("%s: %w", sub, ErrMissingLevel)
			}
			s.Scenes = append(s.Scenes, generateScene(c, main))
		}

	case ModeMaps:
		parents := make(map[string]*LevelCache)
		for i := range caches {
			for _, sub := range caches[i].SubLevels {
				parents[sub] = &caches[i]
			}
		}
		paths := make([]string, 0, len(byPath))
		for p := range byPath {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			s.Scenes = append(s.Scenes, generateScene(byPath[p], parents[p]))
		}

	default:
		return nil, fmt.Errorf("generate: unknown mode %d", mode)
	}
	return s, nil
}

func generateScene(level, persistent *LevelCache) SceneSpec {
	sc := SceneSpec{Name: ShortName(level.Path)}
	n := len(level.Params)
	if persistent != nil {
		n += len(persistent.Params)
	}
	sc.Parameters = make([]ParameterDescriptor, 0, n)
	if persistent != nil {
		sc.Parameters = append(sc.Parameters, persistent.Params...)
	}
	sc.Parameters = append(sc.Parameters, level.Params...)
	return sc
}
