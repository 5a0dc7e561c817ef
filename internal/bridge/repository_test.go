package bridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/scene"
)

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	_, ok := s.GetStream(1)
	assert.False(t, ok)

	s.SetStream(&StreamState{Handle: 1, Name: "a"})
	s.SetStream(&StreamState{Handle: 2, Name: "b"})
	assert.ElementsMatch(t, []link.StreamHandle{1, 2}, s.ListStreamHandles())

	st, ok := s.GetStream(2)
	require.True(t, ok)
	assert.Equal(t, "b", st.Name)

	s.DeleteStream(1)
	assert.Equal(t, []link.StreamHandle{2}, s.ListStreamHandles())
}

func TestInMemoryRepository_ReplaceStreams(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.ReplaceStreams([]StreamState{
		{Handle: 9, Name: "wall", Ready: true},
		{Handle: 3, Name: "main", Ready: true},
		{Handle: 5, Name: "broken"},
	})

	streams := repo.Streams()
	require.Len(t, streams, 3)
	assert.Equal(t, link.StreamHandle(3), streams[0].Handle)
	assert.Equal(t, link.StreamHandle(9), streams[2].Handle)
	assert.False(t, streams[0].UpdatedAt.IsZero())
	assert.Equal(t, 2, repo.ActiveStreamCount())

	repo.ReplaceStreams([]StreamState{{Handle: 5, Name: "fixed", Ready: true}})
	streams = repo.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "fixed", streams[0].Name)
	assert.Equal(t, 1, repo.ActiveStreamCount())
}

func TestInMemoryRepository_RecordFrame(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.ReplaceStreams([]StreamState{{Handle: 3, Ready: true}})

	require.NoError(t, repo.RecordFrame(3, 4, 0, nil))
	require.NoError(t, repo.RecordFrame(3, 6, 2, errors.New("send frame for main: invalid_handle")))

	st := repo.Streams()[0]
	assert.Equal(t, uint64(1), st.FramesSent)
	assert.Equal(t, uint64(1), st.FrameErrors)
	assert.Equal(t, uint64(6), st.FenceValue)
	assert.Equal(t, uint64(2), st.CameraDrops)
	assert.Equal(t, "send frame for main: invalid_handle", st.LastError)

	assert.ErrorIs(t, repo.RecordFrame(42, 2, 0, nil), ErrUnknownStream)
}

func TestInMemoryRepository_Streams_snapshot(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.ReplaceStreams([]StreamState{{Handle: 3, Name: "main"}})

	streams := repo.Streams()
	streams[0].Name = "changed"
	assert.Equal(t, "main", repo.Streams()[0].Name)
}

func TestInMemoryRepository_Scenes(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.SetScenes(SceneState{
		ActiveScene: 1,
		LastResult:  "applied",
		Specs:       []scene.SpecView{{SceneIndex: 0, Name: "Main"}, {SceneIndex: 1, Name: "Stage"}},
	})

	got := repo.Scenes()
	assert.Equal(t, uint32(1), got.ActiveScene)
	assert.False(t, got.UpdatedAt.IsZero())
	require.Len(t, got.Specs, 2)

	got.Specs[0].Name = "changed"
	assert.Equal(t, "Main", repo.Scenes().Specs[0].Name)
}

func TestInMemoryRepository_concurrent(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.ReplaceStreams([]StreamState{{Handle: 1, Ready: true}, {Handle: 2, Ready: true}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(h link.StreamHandle) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = repo.RecordFrame(h, uint64(j), 0, nil)
				_ = repo.Streams()
			}
		}(link.StreamHandle(i%2 + 1))
	}
	wg.Wait()

	var total uint64
	for _, st := range repo.Streams() {
		total += st.FramesSent
	}
	assert.Equal(t, uint64(800), total)
}
