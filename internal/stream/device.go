package stream

import (
	"errors"
	"image"

	"renderstream-bridge/internal/link"
)

// Texture is a GPU surface owned by a Device.
type Texture interface {
	Size() image.Point
	Format() link.PixelFormat
}

// Resources are the per-stream GPU objects: a double-buffered target
// texture and the fence shared with the host.
type Resources struct {
	Buffers [2]Texture
	Fence   link.Fence
}

// UVRect is a normalised sub-rectangle of a texture.
type UVRect struct {
	U0, U1 float32
	V0, V1 float32
}

// Device creates and releases stream resources.
type Device interface {
	CreateStreamResources(size image.Point, format link.PixelFormat) (*Resources, error)
	ReleaseStreamResources(r *Resources)
}

// CommandList records GPU work. Only the render goroutine holds one, which
// is what confines frame submission to that goroutine.
type CommandList interface {
	// CopyRegion resamples the uv sub-rectangle of src onto all of dst.
	CopyRegion(dst, src Texture, uv UVRect) error
	// Signal signals f with value once the preceding work completes.
	Signal(f link.Fence, value uint64)
	// FrameData describes tex to the host.
	FrameData(tex Texture, fence link.Fence, fenceValue uint64) (link.FrameType, link.FrameTypeData)
}

var (
	// ErrInvalidFormat is returned for FormatInvalid or an unknown format.
	ErrInvalidFormat = errors.New("invalid pixel format")

	// ErrInvalidSize is returned for an empty texture size.
	ErrInvalidSize = errors.New("invalid texture size")

	// ErrFormatMismatch is returned when copying between textures of
	// different formats.
	ErrFormatMismatch = errors.New("texture format mismatch")

	// ErrForeignTexture is returned when a texture does not belong to the
	// device.
	ErrForeignTexture = errors.New("texture not created by this device")
)
