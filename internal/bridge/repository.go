package bridge

import (
	"errors"
	"sort"
	"sync"
	"time"

	"renderstream-bridge/internal/link"
)

// Repository is the concurrency-safe state the bridge goroutines publish
// and the HTTP handler reads.
type Repository interface {
	// ReplaceStreams swaps the published streams for a new set, dropping
	// streams that are not in it.
	ReplaceStreams(streams []StreamState)

	// RecordFrame updates the frame counters of a stream. err is the
	// submission error, nil on success.
	RecordFrame(h link.StreamHandle, fenceValue, cameraDrops uint64, err error) error

	// Streams returns a snapshot of every stream ordered by handle.
	Streams() []StreamState

	// SetScenes replaces the scene selector state.
	SetScenes(s SceneState)

	// Scenes returns a snapshot of the scene selector state.
	Scenes() SceneState

	// ActiveStreamCount returns the number of streams that are set up.
	// Used for metrics.
	ActiveStreamCount() int
}

// ErrUnknownStream is returned when recording a frame for a stream that is
// not published.
var ErrUnknownStream = errors.New("unknown stream")

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu     sync.RWMutex
	store  Store
	scenes SceneState
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// ReplaceStreams implements Repository.ReplaceStreams.
func (r *InMemoryRepository) ReplaceStreams(streams []StreamState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[link.StreamHandle]struct{}, len(streams))
	now := time.Now().UTC()
	for i := range streams {
		st := streams[i]
		st.UpdatedAt = now
		r.store.SetStream(&st)
		keep[st.Handle] = struct{}{}
	}
	for _, h := range r.store.ListStreamHandles() {
		if _, ok := keep[h]; !ok {
			r.store.DeleteStream(h)
		}
	}
}

// RecordFrame implements Repository.RecordFrame.
func (r *InMemoryRepository) RecordFrame(h link.StreamHandle, fenceValue, cameraDrops uint64, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.GetStream(h)
	if !ok {
		return ErrUnknownStream
	}
	st.FenceValue = fenceValue
	st.CameraDrops = cameraDrops
	if err != nil {
		st.FrameErrors++
		st.LastError = err.Error()
	} else {
		st.FramesSent++
	}
	st.UpdatedAt = time.Now().UTC()
	return nil
}

// Streams implements Repository.Streams.
func (r *InMemoryRepository) Streams() []StreamState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.store.ListStreamHandles()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	out := make([]StreamState, 0, len(handles))
	for _, h := range handles {
		if st, ok := r.store.GetStream(h); ok {
			out = append(out, *st)
		}
	}
	return out
}

// SetScenes implements Repository.SetScenes.
func (r *InMemoryRepository) SetScenes(s SceneState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.UpdatedAt = time.Now().UTC()
	r.scenes = s
}

// Scenes implements Repository.Scenes.
func (r *InMemoryRepository) Scenes() SceneState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.scenes
	s.Specs = append(s.Specs[:0:0], s.Specs...)
	return s
}

// ActiveStreamCount implements Repository.ActiveStreamCount.
func (r *InMemoryRepository) ActiveStreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, h := range r.store.ListStreamHandles() {
		if st, ok := r.store.GetStream(h); ok && st.Ready {
			n++
		}
	}
	return n
}
