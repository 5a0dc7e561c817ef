package link

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderstream-bridge/internal/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSchema() *schema.Schema {
	return &schema.Schema{
		Channels: []string{"Camera_A"},
		Scenes: []schema.SceneSpec{
			{Name: "Main", Parameters: []schema.ParameterDescriptor{{Key: "Sun", Max: 1, Default: 0.5}}},
			{Name: "Level_A", Parameters: []schema.ParameterDescriptor{
				{Key: "Sun", Max: 1, Default: 0.5},
				{Key: "A1", Max: 1, Default: 0.1},
				{Key: "A2", Max: 1, Default: 0.2},
			}},
		},
	}
}

func testStreams() []StreamDescription {
	return []StreamDescription{{Handle: 7, Channel: "Camera_A", Name: "Camera_A_0", Width: 64, Height: 32, Format: FormatBGRA8, Clipping: FullClipping}}
}

func openGateway(t *testing.T) (*Gateway, *Loopback) {
	t.Helper()
	lb := NewLoopback(LoopbackConfig{Streams: testStreams()})
	g := NewGateway(lb, filepath.Join(t.TempDir(), "project.uproject"), testLogger())
	require.NoError(t, g.Open())
	t.Cleanup(func() { _ = g.Close() })
	return g, lb
}

func TestGateway_Open_version(t *testing.T) {
	lb := NewLoopback(LoopbackConfig{VersionMajor: 2, VersionMinor: 0})
	g := NewGateway(lb, "project", testLogger())

	err := g.Open()
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
	assert.False(t, g.IsOpen())
	assert.Empty(t, g.Session())

	_, err = g.LoadSchema()
	assert.ErrorIs(t, err, ErrNotInitialised)
	_, err = g.SetSchema(testSchema())
	assert.ErrorIs(t, err, ErrNotInitialised)
}

func TestGateway_Open_older_host_minor(t *testing.T) {
	lb := NewLoopback(LoopbackConfig{VersionMajor: VersionMajor, VersionMinor: VersionMinor - 1})
	g := NewGateway(lb, "project", testLogger())
	assert.ErrorIs(t, g.Open(), ErrIncompatibleVersion)

	newer := NewLoopback(LoopbackConfig{VersionMajor: VersionMajor, VersionMinor: VersionMinor + 5})
	g = NewGateway(newer, "project", testLogger())
	assert.NoError(t, g.Open())
}

func TestGateway_Open_twice(t *testing.T) {
	g, _ := openGateway(t)
	assert.ErrorIs(t, g.Open(), ErrAlreadyInitialised)
	assert.NotEmpty(t, g.Session())

	require.NoError(t, g.Close())
	assert.NoError(t, g.Close())
	assert.False(t, g.IsOpen())
}

func TestGateway_Save_and_Load_schema(t *testing.T) {
	g, _ := openGateway(t)

	_, err := g.LoadSchema()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, g.SaveSchema(testSchema()))
	_, err = os.Stat(SchemaFile(g.AssetPath()))
	require.NoError(t, err)

	loaded, err := g.LoadSchema()
	require.NoError(t, err)
	assert.Equal(t, testSchema(), loaded)
}

func TestGateway_SaveSchema_rejects_invalid(t *testing.T) {
	g, _ := openGateway(t)
	bad := testSchema()
	bad.Scenes[1].Parameters[1].Key = "Sun"
	assert.ErrorIs(t, g.SaveSchema(bad), ErrIncorrectSchema)
}

func TestGateway_SetSchema_fills_hashes(t *testing.T) {
	g, _ := openGateway(t)
	in := testSchema()

	hashed, err := g.SetSchema(in)
	require.NoError(t, err)
	assert.Zero(t, in.Scenes[0].Hash, "input is not modified")
	assert.NotZero(t, hashed.Scenes[0].Hash)
	assert.NotEqual(t, hashed.Scenes[0].Hash, hashed.Scenes[1].Hash)
	assert.Same(t, hashed, g.Schema())

	again, err := g.SetSchema(testSchema())
	require.NoError(t, err)
	assert.Equal(t, hashed.Scenes[1].Hash, again.Scenes[1].Hash, "same layout, same hash")

	changed := testSchema()
	changed.Scenes[1].Parameters[2].Max = 2
	other, err := g.SetSchema(changed)
	require.NoError(t, err)
	assert.NotEqual(t, hashed.Scenes[1].Hash, other.Scenes[1].Hash)
}

func TestGateway_GetFrameParameters(t *testing.T) {
	g, lb := openGateway(t)
	hashed, err := g.SetSchema(testSchema())
	require.NoError(t, err)
	hash := hashed.Scenes[1].Hash

	buf := make([]float32, 3)
	require.NoError(t, g.GetFrameParameters(hash, buf))
	assert.Equal(t, []float32{0.5, 0.1, 0.2}, buf)

	require.Equal(t, Success, lb.SetParameters("Level_A", []float32{1, 2, 3}))
	require.NoError(t, g.GetFrameParameters(hash, buf))
	assert.Equal(t, []float32{1, 2, 3}, buf)

	require.Equal(t, Success, lb.SetParameter("Level_A", "A2", 9))
	require.NoError(t, g.GetFrameParameters(hash, buf))
	assert.Equal(t, []float32{1, 2, 9}, buf)

	assert.ErrorIs(t, g.GetFrameParameters(hash, make([]float32, 2)), ErrBufferOverflow)
	assert.ErrorIs(t, g.GetFrameParameters(12345, buf), ErrNotFound)
}

func TestGateway_GetFrameParameters_empty_buffer(t *testing.T) {
	g, _ := openGateway(t)
	hashed, err := g.SetSchema(testSchema())
	require.NoError(t, err)

	assert.ErrorIs(t, g.GetFrameParameters(hashed.Scenes[1].Hash, nil), ErrBufferOverflow)
	assert.ErrorIs(t, g.GetFrameParameters(hashed.Scenes[1].Hash, []float32{}), ErrBufferOverflow)
	assert.ErrorIs(t, g.GetFrameParameters(12345, nil), ErrNotFound)
}

func TestGateway_AwaitFrameData(t *testing.T) {
	g, lb := openGateway(t)

	start := time.Now()
	_, err := g.AwaitFrameData(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	require.True(t, lb.PushFrame(FrameData{TTracked: 1.5, Scene: 1, Flags: FlagReset}))
	fd, err := g.AwaitFrameData(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), fd.Scene)
	assert.True(t, fd.Reset())

	lb.SetStreams(nil)
	_, err = g.AwaitFrameData(time.Second)
	assert.ErrorIs(t, err, ErrStreamsChanged)
	streams, err := g.Streams()
	require.NoError(t, err)
	assert.Empty(t, streams)
}

func TestGateway_follower_mode(t *testing.T) {
	g, _ := openGateway(t)
	assert.ErrorIs(t, g.BeginFollowerFrame(1), ErrInvalidParameters)

	require.NoError(t, g.SetFollower(true))
	assert.NoError(t, g.BeginFollowerFrame(1))
	_, err := g.AwaitFrameData(time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

type countingFence struct{ signalled []uint64 }

func (f *countingFence) Signal(v uint64)        { f.signalled = append(f.signalled, v) }
func (f *countingFence) CompletedValue() uint64 { return 0 }

func TestGateway_SendFrame(t *testing.T) {
	g, lb := openGateway(t)
	resp := &CameraResponseData{TTracked: 2.5}

	err := g.SendFrame(99, FrameTypeHostMemory, FrameTypeData{HostMemory: &HostMemoryData{Data: []byte{1}}}, resp)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	err = g.SendFrame(7, FrameTypeHostMemory, FrameTypeData{}, resp)
	assert.ErrorIs(t, err, ErrBadStreamType)

	require.NoError(t, g.SendFrame(7, FrameTypeHostMemory, FrameTypeData{HostMemory: &HostMemoryData{Data: []byte{1, 2, 3, 4}, Stride: 4}}, resp))
	assert.Equal(t, []byte{1, 2, 3, 4}, lb.LastImage(7))

	fence := &countingFence{}
	require.NoError(t, g.SendFrame(7, FrameTypeDX12Texture, FrameTypeData{Texture: &TextureData{Fence: fence, FenceValue: 4}}, resp))
	assert.Equal(t, []uint64{5}, fence.signalled)

	frames := lb.Received(7)
	require.Len(t, frames, 2)
	assert.Equal(t, 2.5, frames[0].TTracked)
	assert.Equal(t, uint64(4), frames[1].FenceValue)
}

func TestGateway_host_services(t *testing.T) {
	g, lb := openGateway(t)

	cam, err := g.GetFrameCamera(7)
	require.NoError(t, err)
	assert.Equal(t, StreamHandle(7), cam.ID)
	assert.Equal(t, float32(35), cam.FocalLength)

	lb.SetCamera(7, CameraData{X: 1, FocalLength: 50, SensorX: 36, SensorY: 24})
	cam, err = g.GetFrameCamera(7)
	require.NoError(t, err)
	assert.Equal(t, float32(50), cam.FocalLength)

	_, err = g.GetFrameCamera(8)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	require.NoError(t, g.SetStatusMessage("Connected to stream"))
	assert.Equal(t, "Connected to stream", lb.Status())
	require.NoError(t, g.LogToHost("hello"))
	assert.Equal(t, []string{"hello"}, lb.HostLog())
	require.NoError(t, g.SendProfilingData([]ProfilingEntry{{Name: "tick", Value: 1.5}}))
	assert.Len(t, lb.Profiling(), 1)
}

func TestGateway_closed_calls(t *testing.T) {
	g := NewGateway(NewLoopback(LoopbackConfig{}), "project", testLogger())
	_, err := g.AwaitFrameData(time.Millisecond)
	assert.ErrorIs(t, err, ErrNotInitialised)
	assert.ErrorIs(t, g.SendFrame(1, FrameTypeHostMemory, FrameTypeData{}, nil), ErrNotInitialised)
	_, err = g.GetFrameCamera(1)
	assert.ErrorIs(t, err, ErrNotInitialised)
	assert.ErrorIs(t, g.SetStatusMessage("x"), ErrNotInitialised)
}
