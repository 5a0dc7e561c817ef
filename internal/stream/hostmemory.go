package stream

import (
	"image"
	"image/color"
	"sync/atomic"

	"renderstream-bridge/internal/link"
)

// HostTexture is a CPU pixel buffer in one of the link pixel formats.
type HostTexture struct {
	size   image.Point
	format link.PixelFormat
	stride int
	pix    []byte
}

// NewHostTexture allocates a zeroed texture.
func NewHostTexture(size image.Point, format link.PixelFormat) (*HostTexture, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, ErrInvalidFormat
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidSize
	}
	return &HostTexture{
		size:   size,
		format: format,
		stride: size.X * bpp,
		pix:    make([]byte, size.X*size.Y*bpp),
	}, nil
}

func (t *HostTexture) Size() image.Point        { return t.size }
func (t *HostTexture) Format() link.PixelFormat { return t.format }
func (t *HostTexture) Stride() int              { return t.stride }
func (t *HostTexture) Pix() []byte              { return t.pix }

// Fill sets every pixel to c. Only 8-bit formats are supported; RGBA32F
// textures are left unchanged.
func (t *HostTexture) Fill(c color.RGBA) {
	if t.format != link.FormatBGRA8 && t.format != link.FormatBGRX8 {
		return
	}
	a := c.A
	if t.format == link.FormatBGRX8 {
		a = 0xff
	}
	for i := 0; i < len(t.pix); i += 4 {
		t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3] = c.B, c.G, c.R, a
	}
}

// SetBGRA writes one pixel of an 8-bit texture.
func (t *HostTexture) SetBGRA(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= t.size.X || y >= t.size.Y || t.format.BytesPerPixel() != 4 {
		return
	}
	i := y*t.stride + x*4
	t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3] = c.B, c.G, c.R, c.A
}

// AtBGRA reads one pixel of an 8-bit texture.
func (t *HostTexture) AtBGRA(x, y int) color.RGBA {
	if x < 0 || y < 0 || x >= t.size.X || y >= t.size.Y || t.format.BytesPerPixel() != 4 {
		return color.RGBA{}
	}
	i := y*t.stride + x*4
	return color.RGBA{B: t.pix[i], G: t.pix[i+1], R: t.pix[i+2], A: t.pix[i+3]}
}

// AtomicFence is a host-memory timeline fence.
type AtomicFence struct {
	value atomic.Uint64
}

// Signal moves the fence to v. Timeline fences never go backwards, a lower
// value is ignored.
func (f *AtomicFence) Signal(v uint64) {
	for {
		cur := f.value.Load()
		if v <= cur || f.value.CompareAndSwap(cur, v) {
			return
		}
	}
}

// CompletedValue returns the last signalled value.
func (f *AtomicFence) CompletedValue() uint64 {
	return f.value.Load()
}

// HostMemoryDevice implements Device and CommandList on CPU memory. Frames
// are submitted as link.FrameTypeHostMemory.
type HostMemoryDevice struct{}

var (
	_ Device      = HostMemoryDevice{}
	_ CommandList = HostMemoryDevice{}
)

// CreateStreamResources implements Device.
func (HostMemoryDevice) CreateStreamResources(size image.Point, format link.PixelFormat) (*Resources, error) {
	r := &Resources{Fence: &AtomicFence{}}
	for i := range r.Buffers {
		tex, err := NewHostTexture(size, format)
		if err != nil {
			return nil, err
		}
		r.Buffers[i] = tex
	}
	return r, nil
}

// ReleaseStreamResources implements Device.
func (HostMemoryDevice) ReleaseStreamResources(r *Resources) {
	if r == nil {
		return
	}
	r.Buffers = [2]Texture{}
	r.Fence = nil
}

// CopyRegion implements CommandList with nearest-neighbour sampling.
func (HostMemoryDevice) CopyRegion(dst, src Texture, uv UVRect) error {
	d, ok := dst.(*HostTexture)
	if !ok {
		return ErrForeignTexture
	}
	s, ok := src.(*HostTexture)
	if !ok {
		return ErrForeignTexture
	}
	if d.format.BytesPerPixel() != s.format.BytesPerPixel() {
		return ErrFormatMismatch
	}
	bpp := d.format.BytesPerPixel()

	sx0 := float32(s.size.X) * uv.U0
	sy0 := float32(s.size.Y) * uv.V0
	sw := float32(s.size.X) * (uv.U1 - uv.U0)
	sh := float32(s.size.Y) * (uv.V1 - uv.V0)
	for y := 0; y < d.size.Y; y++ {
		syi := clampInt(int(sy0+(float32(y)+0.5)*sh/float32(d.size.Y)), 0, s.size.Y-1)
		for x := 0; x < d.size.X; x++ {
			sxi := clampInt(int(sx0+(float32(x)+0.5)*sw/float32(d.size.X)), 0, s.size.X-1)
			di := y*d.stride + x*bpp
			si := syi*s.stride + sxi*bpp
			copy(d.pix[di:di+bpp], s.pix[si:si+bpp])
		}
	}
	return nil
}

// Signal implements CommandList. Host memory work is synchronous, so the
// fence is signalled immediately.
func (HostMemoryDevice) Signal(f link.Fence, value uint64) {
	if f != nil {
		f.Signal(value)
	}
}

// FrameData implements CommandList.
func (HostMemoryDevice) FrameData(tex Texture, _ link.Fence, _ uint64) (link.FrameType, link.FrameTypeData) {
	t, ok := tex.(*HostTexture)
	if !ok {
		return link.FrameTypeHostMemory, link.FrameTypeData{}
	}
	return link.FrameTypeHostMemory, link.FrameTypeData{
		HostMemory: &link.HostMemoryData{Data: t.pix, Stride: uint32(t.stride)},
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
