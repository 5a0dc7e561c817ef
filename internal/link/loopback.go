package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"renderstream-bridge/internal/schema"
)

// SchemaFileSuffix is appended to the project asset path to name the saved
// schema.
const SchemaFileSuffix = ".rsschema.yaml"

// SchemaFile returns the path the Loopback saves the schema of assetPath to.
func SchemaFile(assetPath string) string {
	return assetPath + SchemaFileSuffix
}

const frameQueueSize = 64

// ReceivedFrame is the Loopback's record of a submitted frame.
type ReceivedFrame struct {
	Handle     StreamHandle
	Type       FrameType
	TTracked   float64
	FenceValue uint64
	Bytes      int
	ReceivedAt time.Time
}

// LoopbackConfig configures the simulated host.
type LoopbackConfig struct {
	// VersionMajor and VersionMinor are the host's protocol version;
	// zero values mean the version of this package.
	VersionMajor, VersionMinor int
	Streams                    []StreamDescription
}

// Loopback is an in-process host. It implements API with the same call
// contract as the vendor library and adds host-side controls (PushFrame,
// SetParameters, SetCamera, SetStreams) for driving the bridge without an
// external process.
type Loopback struct {
	cfg    LoopbackConfig
	frames chan FrameData

	mu             sync.Mutex
	initialised    bool
	follower       bool
	followerTime   float64
	streamsChanged bool
	streams        []StreamDescription
	schema         *schema.Schema
	params         map[uint64][]float32
	cameras        map[StreamHandle]CameraData
	received       map[StreamHandle][]ReceivedFrame
	lastImage      map[StreamHandle][]byte
	status         string
	hostLog        []string
	profiling      []ProfilingEntry
	info, errs     Logger
	verbose        Logger
}

// NewLoopback returns an uninitialised Loopback.
func NewLoopback(cfg LoopbackConfig) *Loopback {
	if cfg.VersionMajor == 0 && cfg.VersionMinor == 0 {
		cfg.VersionMajor, cfg.VersionMinor = VersionMajor, VersionMinor
	}
	return &Loopback{
		cfg:       cfg,
		frames:    make(chan FrameData, frameQueueSize),
		streams:   append([]StreamDescription(nil), cfg.Streams...),
		params:    make(map[uint64][]float32),
		cameras:   make(map[StreamHandle]CameraData),
		received:  make(map[StreamHandle][]ReceivedFrame),
		lastImage: make(map[StreamHandle][]byte),
	}
}

var _ API = (*Loopback)(nil)

func (l *Loopback) logInfo(format string, args ...any) {
	if l.info != nil {
		l.info(fmt.Sprintf(format, args...))
	}
}

func (l *Loopback) logVerbose(format string, args ...any) {
	if l.verbose != nil {
		l.verbose(fmt.Sprintf(format, args...))
	}
}

// RegisterLoggers implements API.
func (l *Loopback) RegisterLoggers(info, errs, verbose Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info, l.errs, l.verbose = info, errs, verbose
}

// UnregisterLoggers implements API.
func (l *Loopback) UnregisterLoggers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info, l.errs, l.verbose = nil, nil, nil
}

// Initialise implements API. The major version must match and the minor
// version must not be newer than the host's.
func (l *Loopback) Initialise(major, minor int) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialised {
		return AlreadyInitialised
	}
	if major != l.cfg.VersionMajor || minor > l.cfg.VersionMinor {
		if l.errs != nil {
			l.errs(fmt.Sprintf("client version %d.%d incompatible with host %d.%d", major, minor, l.cfg.VersionMajor, l.cfg.VersionMinor))
		}
		return IncompatibleVersion
	}
	l.initialised = true
	l.logInfo("initialised version %d.%d", major, minor)
	return Success
}

// Shutdown implements API.
func (l *Loopback) Shutdown() Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	l.initialised = false
	l.follower = false
	return Success
}

// SaveSchema implements API by writing the schema as YAML.
func (l *Loopback) SaveSchema(assetPath string, s *schema.Schema) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	if s == nil {
		return InvalidParameters
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return IncorrectSchema
	}
	if err := os.WriteFile(SchemaFile(assetPath), b, 0o644); err != nil {
		return Unspecified
	}
	l.logInfo("saved schema for %s", assetPath)
	return Success
}

// LoadSchema implements API.
func (l *Loopback) LoadSchema(assetPath string) (*schema.Schema, Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return nil, NotInitialised
	}
	b, err := os.ReadFile(SchemaFile(assetPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NotFound
	}
	if err != nil {
		return nil, Unspecified
	}
	var s schema.Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, IncorrectSchema
	}
	return &s, Success
}

// SceneHash fingerprints the parameter layout of a scene.
func SceneHash(sc schema.SceneSpec) uint64 {
	d := xxhash.New()
	var buf [4]byte
	writeFloat := func(f float32) {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		_, _ = d.Write(buf[:])
	}
	_, _ = d.WriteString(sc.Name)
	_, _ = d.Write([]byte{0})
	for _, p := range sc.Parameters {
		_, _ = d.WriteString(p.Key)
		_, _ = d.Write([]byte{0})
		writeFloat(p.Min)
		writeFloat(p.Max)
		writeFloat(p.Step)
		for _, o := range p.Options {
			_, _ = d.WriteString(o)
			_, _ = d.Write([]byte{1})
		}
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// SetSchema implements API. Each scene gets its layout hash and a parameter
// buffer holding the defaults; buffers of unchanged layouts keep their
// current values.
func (l *Loopback) SetSchema(s *schema.Schema) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	if s == nil {
		return InvalidParameters
	}
	params := make(map[uint64][]float32, len(s.Scenes))
	for i := range s.Scenes {
		sc := &s.Scenes[i]
		sc.Hash = SceneHash(*sc)
		if prev, ok := l.params[sc.Hash]; ok && len(prev) == len(sc.Parameters) {
			params[sc.Hash] = prev
			continue
		}
		params[sc.Hash] = sc.Defaults()
	}
	l.params = params
	l.schema = s.Clone()
	l.logInfo("schema set with %d scenes", len(s.Scenes))
	return Success
}

// GetStreams implements API.
func (l *Loopback) GetStreams() ([]StreamDescription, Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return nil, NotInitialised
	}
	return append([]StreamDescription(nil), l.streams...), Success
}

// SetFollower implements API.
func (l *Loopback) SetFollower(follower bool) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	l.follower = follower
	return Success
}

// BeginFollowerFrame implements API. It is only valid in follower mode.
func (l *Loopback) BeginFollowerFrame(tTracked float64) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	if !l.follower {
		return InvalidParameters
	}
	l.followerTime = tTracked
	return Success
}

// AwaitFrameData implements API. A pending stream change is reported once
// before any further frame data.
func (l *Loopback) AwaitFrameData(timeoutMs int) (FrameData, Code) {
	l.mu.Lock()
	if !l.initialised {
		l.mu.Unlock()
		return FrameData{}, NotInitialised
	}
	if l.follower {
		l.mu.Unlock()
		return FrameData{}, InvalidParameters
	}
	if l.streamsChanged {
		l.streamsChanged = false
		l.mu.Unlock()
		return FrameData{}, StreamsChanged
	}
	l.mu.Unlock()

	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case fd := <-l.frames:
		return fd, Success
	case <-timer.C:
		return FrameData{}, Timeout
	}
}

// SendFrame implements API. Texture frames with a fence are consumed
// immediately: the host signals FenceValue+1 back.
func (l *Loopback) SendFrame(handle StreamHandle, frameType FrameType, data FrameTypeData, response *CameraResponseData) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	if !l.hasStreamLocked(handle) {
		return InvalidHandle
	}

	rec := ReceivedFrame{Handle: handle, Type: frameType, ReceivedAt: time.Now()}
	if response != nil {
		rec.TTracked = response.TTracked
	}
	switch frameType {
	case FrameTypeHostMemory:
		if data.HostMemory == nil {
			return BadStreamType
		}
		rec.Bytes = len(data.HostMemory.Data)
		l.lastImage[handle] = append(l.lastImage[handle][:0], data.HostMemory.Data...)
	case FrameTypeDX11Texture, FrameTypeDX12Texture:
		if data.Texture == nil {
			return BadStreamType
		}
		rec.FenceValue = data.Texture.FenceValue
		if data.Texture.Fence != nil {
			data.Texture.Fence.Signal(data.Texture.FenceValue + 1)
		}
	default:
		return BadStreamType
	}
	l.received[handle] = append(l.received[handle], rec)
	l.logVerbose("frame %d received for stream %d", len(l.received[handle]), handle)
	return Success
}

// GetFrameParameters implements API.
func (l *Loopback) GetFrameParameters(hash uint64, out []float32) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	values, ok := l.params[hash]
	if !ok {
		return NotFound
	}
	if len(out) != len(values) {
		return BufferOverflow
	}
	copy(out, values)
	return Success
}

// GetFrameCamera implements API.
func (l *Loopback) GetFrameCamera(handle StreamHandle) (CameraData, Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return CameraData{}, NotInitialised
	}
	if !l.hasStreamLocked(handle) {
		return CameraData{}, InvalidHandle
	}
	cam, ok := l.cameras[handle]
	if !ok {
		cam = DefaultCamera()
	}
	cam.ID = handle
	return cam, Success
}

// LogToHost implements API.
func (l *Loopback) LogToHost(msg string) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	l.hostLog = append(l.hostLog, msg)
	return Success
}

// SendProfilingData implements API.
func (l *Loopback) SendProfilingData(entries []ProfilingEntry) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	l.profiling = append(l.profiling[:0], entries...)
	return Success
}

// SetStatusMessage implements API.
func (l *Loopback) SetStatusMessage(msg string) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialised {
		return NotInitialised
	}
	l.status = msg
	return Success
}

func (l *Loopback) hasStreamLocked(handle StreamHandle) bool {
	for _, s := range l.streams {
		if s.Handle == handle {
			return true
		}
	}
	return false
}

// DefaultCamera is a camera 5m back from the origin with a 35mm lens.
func DefaultCamera() CameraData {
	return CameraData{
		Z:           -5,
		FocalLength: 35,
		SensorX:     36,
		SensorY:     24,
		NearZ:       0.1,
		FarZ:        1000,
		Tracking:    TrackingData{VirtualZoomScale: 1},
	}
}

// PushFrame queues frame data for AwaitFrameData. It reports false when the
// queue is full.
func (l *Loopback) PushFrame(fd FrameData) bool {
	select {
	case l.frames <- fd:
		return true
	default:
		return false
	}
}

// SetParameters replaces the parameter values of the named scene of the
// current schema.
func (l *Loopback) SetParameters(sceneName string, values []float32) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.schema == nil {
		return IncorrectSchema
	}
	id, ok := l.schema.SceneByName(sceneName)
	if !ok {
		return NotFound
	}
	hash := l.schema.Scenes[id].Hash
	if len(values) != len(l.params[hash]) {
		return BufferOverflow
	}
	l.params[hash] = append([]float32(nil), values...)
	return Success
}

// SetParameter sets a single parameter of the named scene by key.
func (l *Loopback) SetParameter(sceneName, key string, value float32) Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.schema == nil {
		return IncorrectSchema
	}
	id, ok := l.schema.SceneByName(sceneName)
	if !ok {
		return NotFound
	}
	sc := l.schema.Scenes[id]
	for i, p := range sc.Parameters {
		if p.Key == key {
			l.params[sc.Hash][i] = value
			return Success
		}
	}
	return NotFound
}

// SetCamera sets the tracked camera returned for a stream.
func (l *Loopback) SetCamera(handle StreamHandle, cam CameraData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cameras[handle] = cam
}

// SetStreams replaces the requested streams; the next AwaitFrameData
// reports StreamsChanged.
func (l *Loopback) SetStreams(streams []StreamDescription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams = append([]StreamDescription(nil), streams...)
	l.streamsChanged = true
}

// Received returns the frames submitted for a stream.
func (l *Loopback) Received(handle StreamHandle) []ReceivedFrame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ReceivedFrame(nil), l.received[handle]...)
}

// LastImage returns a copy of the last host-memory frame of a stream.
func (l *Loopback) LastImage(handle StreamHandle) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.lastImage[handle]...)
}

// Status returns the last status message.
func (l *Loopback) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// HostLog returns the lines written with LogToHost.
func (l *Loopback) HostLog() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.hostLog...)
}

// Profiling returns the last profiling entries.
func (l *Loopback) Profiling() []ProfilingEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ProfilingEntry(nil), l.profiling...)
}

// CurrentSchema returns the schema last set, with hashes.
func (l *Loopback) CurrentSchema() *schema.Schema {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.schema.Clone()
}
