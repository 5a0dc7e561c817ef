package engine

import (
	"sync"

	"renderstream-bridge/internal/scene"
	"renderstream-bridge/internal/schema"
)

// DefaultLoadLatency is the number of Advance calls a level load takes.
const DefaultLoadLatency = 2

// Level is a streaming level.
type Level struct {
	world    *World
	pkg      string
	script   *Actor
	channels []string

	// guarded by world.mu
	loaded   bool
	visible  bool
	pending  int
	requests int
}

var _ scene.Level = (*Level)(nil)

func (l *Level) PackageName() string { return l.pkg }

func (l *Level) IsLoaded() bool {
	l.world.mu.Lock()
	defer l.world.mu.Unlock()
	return l.loaded
}

func (l *Level) Visible() bool {
	l.world.mu.Lock()
	defer l.world.mu.Unlock()
	return l.visible
}

func (l *Level) SetVisible(v bool) {
	l.world.mu.Lock()
	defer l.world.mu.Unlock()
	l.visible = v
}

// ScriptActor implements scene.Level. It is nil while the level is not
// loaded.
func (l *Level) ScriptActor() scene.Actor {
	l.world.mu.Lock()
	defer l.world.mu.Unlock()
	if !l.loaded || l.script == nil {
		return nil
	}
	return l.script
}

// Script returns the level's script actor whether or not it is loaded.
func (l *Level) Script() *Actor { return l.script }

// LoadRequests returns how many times a load was requested.
func (l *Level) LoadRequests() int {
	l.world.mu.Lock()
	defer l.world.mu.Unlock()
	return l.requests
}

// Option configures a World.
type Option func(*World)

// WithStreamingPrefix sets the prefix stripped from level names.
func WithStreamingPrefix(prefix string) Option {
	return func(w *World) { w.prefix = prefix }
}

// WithLoadLatency sets how many Advance calls a level load takes.
func WithLoadLatency(ticks int) Option {
	return func(w *World) { w.latency = ticks }
}

// WithChannels sets the camera channels defined in the persistent level.
func WithChannels(channels ...string) Option {
	return func(w *World) { w.channels = channels }
}

// World is the engine world: a persistent level with its script actor
// plus streaming levels. It is safe for concurrent use.
type World struct {
	mapPath  string
	root     *Actor
	prefix   string
	latency  int
	channels []string

	mu     sync.Mutex
	levels []*Level
}

var _ scene.World = (*World)(nil)

// NewWorld returns a world whose persistent level is mapPath.
func NewWorld(mapPath string, root *Actor, opts ...Option) *World {
	w := &World{mapPath: mapPath, root: root, latency: DefaultLoadLatency}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// MapPath returns the persistent level's package path.
func (w *World) MapPath() string { return w.mapPath }

// Root returns the persistent level's script actor.
func (w *World) Root() *Actor { return w.root }

// AddLevel adds a streaming level.
func (w *World) AddLevel(pkg string, script *Actor, loaded bool, channels ...string) *Level {
	l := &Level{world: w, pkg: pkg, script: script, loaded: loaded, channels: channels}
	w.mu.Lock()
	w.levels = append(w.levels, l)
	w.mu.Unlock()
	return l
}

// RemoveLevel removes a streaming level from the world.
func (w *World) RemoveLevel(pkg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, l := range w.levels {
		if l.pkg == pkg {
			w.levels = append(w.levels[:i], w.levels[i+1:]...)
			return true
		}
	}
	return false
}

// Level returns a streaming level by package path.
func (w *World) Level(pkg string) (*Level, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, l := range w.levels {
		if l.pkg == pkg {
			return l, true
		}
	}
	return nil, false
}

// PersistentRoot implements scene.World.
func (w *World) PersistentRoot() scene.Actor {
	if w.root == nil {
		return nil
	}
	return w.root
}

// StreamingPrefix implements scene.World.
func (w *World) StreamingPrefix() string { return w.prefix }

// Levels implements scene.World.
func (w *World) Levels() []scene.Level {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]scene.Level, len(w.levels))
	for i, l := range w.levels {
		out[i] = l
	}
	return out
}

// LoadLevel implements scene.World. The level becomes loaded after the
// configured number of Advance calls.
func (w *World) LoadLevel(sl scene.Level) {
	l, ok := sl.(*Level)
	if !ok || l.world != w {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	l.requests++
	if l.loaded || l.pending > 0 {
		return
	}
	if w.latency <= 0 {
		l.loaded = true
		return
	}
	l.pending = w.latency
}

// Advance runs one engine tick of level streaming.
func (w *World) Advance() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, l := range w.levels {
		if l.pending == 0 {
			continue
		}
		l.pending--
		if l.pending == 0 {
			l.loaded = true
		}
	}
}

// VisibleLevel returns the first visible loaded level, nil when only the
// persistent level shows.
func (w *World) VisibleLevel() *Level {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, l := range w.levels {
		if l.loaded && l.visible {
			return l
		}
	}
	return nil
}

// Caches describes the world for the schema generator: the persistent
// level with its streaming levels as sub levels, then every streaming
// level.
func (w *World) Caches() []schema.LevelCache {
	w.mu.Lock()
	defer w.mu.Unlock()

	main := schema.LevelCache{Path: w.mapPath, Channels: w.channels}
	if w.root != nil {
		main.Params = w.root.Descriptors()
	}
	caches := []schema.LevelCache{main}
	for _, l := range w.levels {
		caches[0].SubLevels = append(caches[0].SubLevels, l.pkg)
		c := schema.LevelCache{Path: l.pkg, Channels: l.channels}
		if l.script != nil {
			c.Params = l.script.Descriptors()
		}
		caches = append(caches, c)
	}
	return caches
}
