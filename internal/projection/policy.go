// Package projection turns tracked camera samples from the host into view
// and projection transforms per viewport and hands rendered viewports to
// their frame stream.
package projection

import (
	"errors"
	"image"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	trylock "github.com/subchen/go-trylock/v2"

	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/stream"
)

const (
	DefaultQueueSize     = 16
	DefaultWorldToMeters = 100
	DefaultNearClip      = 10
	DefaultFarClip       = 100000

	// fallbackFOV is used when the camera has no usable lens data.
	fallbackFOV = 90

	// lockBudget bounds how long the render goroutine waits for the
	// camera queue before reusing the last sample.
	lockBudget = 50 * time.Microsecond
)

// ErrNoStream is returned by ApplyWarpBlend for a viewport without a
// stream.
var ErrNoStream = errors.New("viewport has no stream")

// Options configures a Policy.
type Options struct {
	QueueSize     int
	WorldToMeters float32
	NearClip      float32
	FarClip       float32
}

// DefaultOptions returns the options used for absent viewport parameters.
func DefaultOptions() Options {
	return Options{
		QueueSize:     DefaultQueueSize,
		WorldToMeters: DefaultWorldToMeters,
		NearClip:      DefaultNearClip,
		FarClip:       DefaultFarClip,
	}
}

// Override returns o with values from viewport parameters applied. Unknown
// keys and unparsable values are ignored.
func (o Options) Override(params map[string]string) Options {
	if v, err := strconv.Atoi(params["queue_size"]); err == nil && v > 0 {
		o.QueueSize = v
	}
	if v, ok := parseFloat(params["world_to_meters"]); ok && v > 0 {
		o.WorldToMeters = v
	}
	if v, ok := parseFloat(params["ncp"]); ok && v > 0 {
		o.NearClip = v
	}
	if v, ok := parseFloat(params["fcp"]); ok && v > 0 {
		o.FarClip = v
	}
	return o
}

func parseFloat(s string) (float32, bool) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

// Rotator is an engine rotation in degrees.
type Rotator struct {
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
	Roll  float32 `json:"roll"`
}

// View is the camera transform for one rendered view.
type View struct {
	Location mgl32.Vec3
	Rotation Rotator
	Matrix   mgl32.Mat4
	Response link.CameraResponseData
	// Fresh is set when the sample was dequeued for this view rather than
	// reused.
	Fresh bool
}

// Policy is the projection policy of one viewport. ApplyCameraData runs on
// the link goroutine; CalculateView, ProjectionMatrix and ApplyWarpBlend
// run on the render goroutine.
type Policy struct {
	viewportID string
	params     map[string]string
	opts       Options
	stream     *stream.FrameStream
	log        *slog.Logger

	mu    trylock.TryLocker
	queue []link.CameraResponseData
	head  int
	count int

	dropped   atomic.Uint64
	contended atomic.Uint64

	// Render goroutine only.
	last    link.CameraResponseData
	hasLast bool
}

// NewPolicy returns a policy for a viewport. s may be nil for viewports
// that render without streaming.
func NewPolicy(viewportID string, params map[string]string, opts Options, s *stream.FrameStream, log *slog.Logger) *Policy {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Policy{
		viewportID: viewportID,
		params:     params,
		opts:       opts,
		stream:     s,
		log:        log.With(slog.String("viewport", viewportID)),
		mu:         trylock.New(),
		queue:      make([]link.CameraResponseData, opts.QueueSize),
	}
}

func (p *Policy) ViewportID() string            { return p.viewportID }
func (p *Policy) Parameters() map[string]string { return p.params }
func (p *Policy) Options() Options              { return p.opts }
func (p *Policy) Stream() *stream.FrameStream   { return p.stream }

// ApplyCameraData queues a camera sample. When the queue is full the
// oldest sample is dropped and counted.
func (p *Policy) ApplyCameraData(frame link.FrameData, camera link.CameraData) {
	resp := link.CameraResponseData{TTracked: frame.TTracked, Camera: camera}

	p.mu.Lock()
	if p.count == len(p.queue) {
		p.head = (p.head + 1) % len(p.queue)
		p.count--
		p.dropped.Add(1)
	}
	p.queue[(p.head+p.count)%len(p.queue)] = resp
	p.count++
	p.mu.Unlock()
}

// Pending returns the number of queued samples.
func (p *Policy) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Dropped returns how many samples were discarded by a full queue.
func (p *Policy) Dropped() uint64 { return p.dropped.Load() }

// Contended returns how many views reused the last sample because the
// queue was locked.
func (p *Policy) Contended() uint64 { return p.contended.Load() }

func (p *Policy) next() (link.CameraResponseData, bool) {
	if !p.mu.TryLockTimeout(lockBudget) {
		p.contended.Add(1)
		return link.CameraResponseData{}, false
	}
	defer p.mu.Unlock()
	if p.count == 0 {
		return link.CameraResponseData{}, false
	}
	resp := p.queue[p.head]
	p.head = (p.head + 1) % len(p.queue)
	p.count--
	return resp, true
}

// CalculateView takes the next queued sample, or reuses the last one when
// none is pending, and returns its view transform. It reports false until
// the first sample arrives.
func (p *Policy) CalculateView() (View, bool) {
	fresh := false
	if resp, ok := p.next(); ok {
		p.last = resp
		p.hasLast = true
		fresh = true
	}
	if !p.hasLast {
		return View{}, false
	}
	v := ViewFromCamera(p.last.Camera, p.opts.WorldToMeters)
	v.Response = p.last
	v.Fresh = fresh
	return v, true
}

// ViewFromCamera converts a host camera to engine space: the host's
// (z, x, y) metres become the engine's (x, y, z) world units.
func ViewFromCamera(cam link.CameraData, worldToMeters float32) View {
	loc := mgl32.Vec3{cam.Z, cam.X, cam.Y}.Mul(worldToMeters)
	rot := Rotator{Pitch: cam.RX, Yaw: cam.RY, Roll: cam.RZ}

	world := mgl32.Translate3D(loc.X(), loc.Y(), loc.Z()).
		Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(rot.Yaw))).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(rot.Pitch))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(rot.Roll)))

	return View{Location: loc, Rotation: rot, Matrix: world.Inv()}
}

// ProjectionMatrix returns the projection of the last sample for the
// viewport's stream. It reports false until the first sample arrives.
func (p *Policy) ProjectionMatrix() (mgl32.Mat4, bool) {
	if !p.hasLast {
		return mgl32.Ident4(), false
	}
	clipping := link.FullClipping
	aspect := float32(16) / 9
	if p.stream != nil && p.stream.Handle() != 0 {
		clipping = p.stream.Clipping()
		if r := p.stream.Resolution(); r.X > 0 && r.Y > 0 {
			aspect = float32(r.X) / float32(r.Y)
		}
	}
	return Projection(p.last.Camera, clipping, aspect, p.opts.NearClip, p.opts.FarClip), true
}

// Projection builds an off-axis frustum from the camera's lens. The
// clipping rectangle selects the part of the full frustum this stream
// renders. Cameras without lens data get a 90 degree perspective.
func Projection(cam link.CameraData, clip link.ProjectionClipping, aspect, defaultNear, defaultFar float32) mgl32.Mat4 {
	near, far := cam.NearZ, cam.FarZ
	if near <= 0 {
		near = defaultNear
	}
	if far <= near {
		far = defaultFar
	}
	if cam.FocalLength <= 0 || cam.SensorX <= 0 || cam.SensorY <= 0 {
		return mgl32.Perspective(mgl32.DegToRad(fallbackFOV), aspect, near, far)
	}

	zoom := cam.Tracking.VirtualZoomScale
	if zoom <= 0 {
		zoom = 1
	}
	halfW := near * cam.SensorX / (2 * cam.FocalLength * zoom)
	halfH := near * cam.SensorY / (2 * cam.FocalLength * zoom)
	shiftX, shiftY := cam.CX*halfW, cam.CY*halfH

	l0, r0 := -halfW+shiftX, halfW+shiftX
	b0, t0 := -halfH+shiftY, halfH+shiftY

	left := l0 + (r0-l0)*clip.Left
	right := l0 + (r0-l0)*clip.Right
	top := t0 - (t0-b0)*clip.Top
	bottom := t0 - (t0-b0)*clip.Bottom
	return mgl32.Frustum(left, right, bottom, top, near, far)
}

// ApplyWarpBlend sends the rendered viewport rectangle of source to the
// viewport's stream with the camera sample it was rendered with.
func (p *Policy) ApplyWarpBlend(cmd stream.CommandList, source stream.Texture, rect image.Rectangle) error {
	if p.stream == nil || p.stream.Handle() == 0 {
		return ErrNoStream
	}
	return p.stream.SendFrame(cmd, p.last, source, rect)
}
