package stream

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"

	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/status"
)

// FenceStep is the distance between two produced fence values. The odd
// value in between is signalled by the host once it has read the frame.
const FenceStep = 2

const initialFenceValue = FenceStep

// ErrNotSetUp is returned by SendFrame before a successful Setup.
var ErrNotSetUp = errors.New("stream not set up")

// Sender submits frames to the host; the link gateway implements it.
type Sender interface {
	SendFrame(handle link.StreamHandle, frameType link.FrameType, data link.FrameTypeData, response *link.CameraResponseData) error
}

// FrameStream is one output stream: a double-buffered target texture and a
// fence shared with the host. SendFrame must be called from the render
// goroutine only, which is enforced by requiring a CommandList.
type FrameStream struct {
	sender Sender
	device Device
	status *status.Indicator
	log    *slog.Logger

	name       string
	channel    string
	resolution image.Point
	clipping   link.ProjectionClipping
	format     link.PixelFormat
	handle     link.StreamHandle

	res        *Resources
	fenceValue atomic.Uint64
	frames     uint64
}

// New returns a stream that has not been set up.
func New(sender Sender, device Device, st *status.Indicator, log *slog.Logger) *FrameStream {
	return &FrameStream{sender: sender, device: device, status: st, log: log}
}

// Setup assigns the stream handle and creates its GPU resources. It fails
// when the stream already has a handle: Teardown must be called first.
func (s *FrameStream) Setup(name string, resolution image.Point, channel string, clipping link.ProjectionClipping, handle link.StreamHandle, format link.PixelFormat) bool {
	if s.handle != 0 {
		return false
	}
	if handle == 0 {
		s.log.Error("unable to create stream", slog.String("stream", name))
		s.status.Output("Error: Unable to create stream", status.Red)
		return false
	}

	res, err := s.device.CreateStreamResources(resolution, format)
	if err != nil {
		s.log.Error("failed to create stream resources",
			slog.String("stream", name),
			slog.String("format", format.String()),
			slog.String("error", err.Error()))
		s.status.Output(fmt.Sprintf("Error: Unable to create resources for stream %s", name), status.Red)
		return false
	}

	s.handle = handle
	s.name = name
	s.channel = channel
	s.clipping = clipping
	s.resolution = resolution
	s.format = format
	s.res = res
	s.frames = 0
	s.fenceValue.Store(initialFenceValue)

	s.log.Info("created stream", slog.String("stream", name), slog.String("channel", channel), slog.Uint64("handle", uint64(handle)))
	s.status.Output("Connected to stream", status.Green)
	return true
}

// Teardown releases the resources and clears the handle.
func (s *FrameStream) Teardown() {
	if s.handle == 0 {
		return
	}
	s.device.ReleaseStreamResources(s.res)
	s.res = nil
	s.handle = 0
	s.log.Info("stopped stream", slog.String("stream", s.name))
}

// UV converts a pixel region of a surface to normalised coordinates.
func UV(region image.Rectangle, surface image.Point) UVRect {
	w, h := float32(surface.X), float32(surface.Y)
	return UVRect{
		U0: float32(region.Min.X) / w,
		U1: float32(region.Max.X) / w,
		V0: float32(region.Min.Y) / h,
		V1: float32(region.Max.Y) / h,
	}
}

// SendFrame copies region of source into the back buffer, signals the
// fence at the current value, submits the frame and advances the fence
// value by FenceStep. It never waits for the host.
func (s *FrameStream) SendFrame(cmd CommandList, response link.CameraResponseData, source Texture, region image.Rectangle) error {
	if s.handle == 0 {
		return ErrNotSetUp
	}
	value := s.fenceValue.Load()
	defer s.fenceValue.Store(value + FenceStep)

	surface := source.Size()
	if surface.X <= 0 || surface.Y <= 0 {
		return ErrInvalidSize
	}
	dst := s.res.Buffers[s.frames%2]
	s.frames++
	if err := cmd.CopyRegion(dst, source, UV(region, surface)); err != nil {
		return fmt.Errorf("copy frame for %s: %w", s.name, err)
	}
	cmd.Signal(s.res.Fence, value)

	frameType, data := cmd.FrameData(dst, s.res.Fence, value)
	if data.Texture != nil {
		data.Texture.FenceValue = value
	}
	if err := s.sender.SendFrame(s.handle, frameType, data, &response); err != nil {
		return fmt.Errorf("send frame for %s: %w", s.name, err)
	}
	return nil
}

// Handle returns the stream handle, zero when not set up.
func (s *FrameStream) Handle() link.StreamHandle { return s.handle }

func (s *FrameStream) Name() string                      { return s.name }
func (s *FrameStream) Channel() string                   { return s.channel }
func (s *FrameStream) Resolution() image.Point           { return s.resolution }
func (s *FrameStream) Clipping() link.ProjectionClipping { return s.clipping }
func (s *FrameStream) Format() link.PixelFormat          { return s.format }

// FenceValue returns the value the next frame will signal. It may be read
// from any goroutine.
func (s *FrameStream) FenceValue() uint64 { return s.fenceValue.Load() }

// Fence returns the stream's fence, nil when not set up.
func (s *FrameStream) Fence() link.Fence {
	if s.res == nil {
		return nil
	}
	return s.res.Fence
}
