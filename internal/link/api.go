package link

import "renderstream-bridge/internal/schema"

// Protocol version spoken by this module. The host accepts the same major
// version and any minor version up to its own.
const (
	VersionMajor = 1
	VersionMinor = 23
)

// Logger receives log lines from the host library.
type Logger func(msg string)

// API is the vendor call boundary: one method per entry point of the host
// library. Implementations are injected into the Gateway once at startup; the
// Loopback type is an in-process implementation.
type API interface {
	RegisterLoggers(info, errs, verbose Logger)
	UnregisterLoggers()

	Initialise(versionMajor, versionMinor int) Code
	Shutdown() Code

	// SaveSchema and LoadSchema persist the schema for a project asset path.
	SaveSchema(assetPath string, s *schema.Schema) Code
	LoadSchema(assetPath string) (*schema.Schema, Code)
	// SetSchema publishes s and fills in the per-scene hashes.
	SetSchema(s *schema.Schema) Code
	GetStreams() ([]StreamDescription, Code)

	// SetFollower marks this node as receiving frame data from another
	// mechanism; BeginFollowerFrame then replaces AwaitFrameData.
	SetFollower(follower bool) Code
	BeginFollowerFrame(tTracked float64) Code
	AwaitFrameData(timeoutMs int) (FrameData, Code)

	SendFrame(handle StreamHandle, frameType FrameType, data FrameTypeData, response *CameraResponseData) Code
	// GetFrameParameters fills out with the current values of the scene
	// identified by hash; len(out) must equal the scene's parameter count.
	GetFrameParameters(hash uint64, out []float32) Code
	GetFrameCamera(handle StreamHandle) (CameraData, Code)

	LogToHost(msg string) Code
	SendProfilingData(entries []ProfilingEntry) Code
	SetStatusMessage(msg string) Code
}
