package bridge

import "renderstream-bridge/internal/link"

// Store is the persistence abstraction for published stream state.
// The Repository uses Store for all reads and writes and does the locking.
type Store interface {
	GetStream(h link.StreamHandle) (*StreamState, bool)
	SetStream(s *StreamState)
	DeleteStream(h link.StreamHandle)
	ListStreamHandles() []link.StreamHandle
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	streams map[link.StreamHandle]*StreamState
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		streams: make(map[link.StreamHandle]*StreamState),
	}
}

// GetStream implements Store.GetStream.
func (s *InMemoryStore) GetStream(h link.StreamHandle) (*StreamState, bool) {
	st, ok := s.streams[h]
	return st, ok
}

// SetStream implements Store.SetStream.
func (s *InMemoryStore) SetStream(st *StreamState) {
	s.streams[st.Handle] = st
}

// DeleteStream implements Store.DeleteStream.
func (s *InMemoryStore) DeleteStream(h link.StreamHandle) {
	delete(s.streams, h)
}

// ListStreamHandles implements Store.ListStreamHandles.
func (s *InMemoryStore) ListStreamHandles() []link.StreamHandle {
	hs := make([]link.StreamHandle, 0, len(s.streams))
	for h := range s.streams {
		hs = append(hs, h)
	}
	return hs
}
