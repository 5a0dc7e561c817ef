package link

// StreamHandle identifies an output stream negotiated with the host.
type StreamHandle uint64

// CameraHandle identifies a tracked camera on the host.
type CameraHandle uint64

// PixelFormat is the pixel layout of a stream.
type PixelFormat uint32

const (
	FormatInvalid PixelFormat = iota
	FormatBGRA8
	FormatBGRX8
	FormatRGBA32F
)

func (f PixelFormat) String() string {
	switch f {
	case FormatBGRA8:
		return "bgra8"
	case FormatBGRX8:
		return "bgrx8"
	case FormatRGBA32F:
		return "rgba32f"
	default:
		return "invalid"
	}
}

// BytesPerPixel returns the size of one pixel, zero for FormatInvalid.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGRA8, FormatBGRX8:
		return 4
	case FormatRGBA32F:
		return 16
	default:
		return 0
	}
}

// FrameType tells the host how to read a submitted frame.
type FrameType int

const (
	FrameTypeHostMemory FrameType = iota
	FrameTypeDX11Texture
	FrameTypeDX12Texture
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeHostMemory:
		return "host_memory"
	case FrameTypeDX11Texture:
		return "dx11_texture"
	case FrameTypeDX12Texture:
		return "dx12_texture"
	default:
		return "unknown"
	}
}

// Frame data flags.
const (
	FlagNone  uint32 = 0
	FlagReset uint32 = 1
)

// TrackingData is tracking information the host needs back with each
// frame but which does not affect rendering.
type TrackingData struct {
	VirtualZoomScale            float32
	VirtualReprojectionRequired bool
	X, Y, Z                     float32
	RX, RY, RZ                  float32
}

// CameraData is the tracked camera for one stream and frame.
// Positions are in meters, rotations in degrees.
type CameraData struct {
	ID           StreamHandle
	CameraHandle CameraHandle
	X, Y, Z      float32
	RX, RY, RZ   float32
	FocalLength  float32
	SensorX      float32
	SensorY      float32
	CX, CY       float32
	NearZ, FarZ  float32
	Tracking     TrackingData
}

// FrameData is the per-tick request from the host.
type FrameData struct {
	TTracked             float64
	LocalTime            float64
	LocalTimeDelta       float64
	FrameRateNumerator   uint32
	FrameRateDenominator uint32
	Flags                uint32
	Scene                uint32
}

// Reset reports whether the host asked for a simulation reset.
func (f FrameData) Reset() bool {
	return f.Flags&FlagReset != 0
}

// CameraResponseData is returned with a submitted frame so the host can
// match the image to the camera it was rendered from.
type CameraResponseData struct {
	TTracked float64
	Camera   CameraData
}

// HostMemoryData points at CPU pixel memory.
type HostMemoryData struct {
	Data   []byte
	Stride uint32
}

// Fence is a GPU timeline fence shared with the host. The producer signals
// even values when a frame is written, the host signals value+1 when it has
// consumed it.
type Fence interface {
	Signal(value uint64)
	CompletedValue() uint64
}

// TextureData references a GPU texture. Resource is an opaque graphics API
// handle; Fence and FenceValue are only set for timeline-fenced APIs.
type TextureData struct {
	Resource   any
	Fence      Fence
	FenceValue uint64
}

// FrameTypeData is the payload of SendFrame. Exactly one field is set,
// matching the FrameType.
type FrameTypeData struct {
	HostMemory *HostMemoryData
	Texture    *TextureData
}

// FrameRegion is a pixel rectangle.
type FrameRegion struct {
	XOffset, YOffset uint32
	Width, Height    uint32
}

// ProjectionClipping holds normalised (0-1) clipping planes for the edges
// of the camera frustum, used for off-axis projection.
type ProjectionClipping struct {
	Left, Right, Top, Bottom float32
}

// FullClipping is the unclipped frustum.
var FullClipping = ProjectionClipping{Left: 0, Right: 1, Top: 0, Bottom: 1}

// StreamDescription is an output stream requested by the host.
type StreamDescription struct {
	Handle   StreamHandle       `json:"handle"`
	Channel  string             `json:"channel"`
	Name     string             `json:"name"`
	Width    uint32             `json:"width"`
	Height   uint32             `json:"height"`
	Format   PixelFormat        `json:"format"`
	Clipping ProjectionClipping `json:"clipping"`
}

// ProfilingEntry is a named timing sample forwarded to the host.
type ProfilingEntry struct {
	Name  string
	Value float32
}
