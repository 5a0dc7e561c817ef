package link

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"renderstream-bridge/internal/schema"
)

// Gateway owns the single connection to the host. It is a thin typed
// wrapper over API: codes become errors, the current schema is kept, and
// nothing is retried. Retry policy belongs to the caller.
type Gateway struct {
	api       API
	log       *slog.Logger
	assetPath string

	mu      sync.RWMutex
	open    bool
	session string
	schema  *schema.Schema
}

// NewGateway returns a closed Gateway for the project at assetPath.
func NewGateway(api API, assetPath string, log *slog.Logger) *Gateway {
	return &Gateway{api: api, assetPath: assetPath, log: log.With(slog.String("component", "link"))}
}

// Open registers the host loggers and negotiates the protocol version. On
// ErrIncompatibleVersion the gateway stays closed and every schema call
// fails with ErrNotInitialised.
func (g *Gateway) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return ErrAlreadyInitialised
	}

	hostLog := g.log.With(slog.String("source", "host"))
	g.api.RegisterLoggers(
		func(msg string) { hostLog.Info(msg) },
		func(msg string) { hostLog.Error(msg) },
		func(msg string) { hostLog.Debug(msg) },
	)
	if err := g.api.Initialise(VersionMajor, VersionMinor).Err(); err != nil {
		g.api.UnregisterLoggers()
		return fmt.Errorf("initialise %d.%d: %w", VersionMajor, VersionMinor, err)
	}
	g.open = true
	g.session = uuid.NewString()
	g.log.Info("link initialised",
		slog.String("session", g.session),
		slog.Int("version_major", VersionMajor),
		slog.Int("version_minor", VersionMinor))
	return nil
}

// Close shuts the link down. Closing a closed gateway is a no-op.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return nil
	}
	g.open = false
	g.schema = nil
	err := g.api.Shutdown().Err()
	g.api.UnregisterLoggers()
	g.log.Info("link shut down", slog.String("session", g.session))
	return err
}

// IsOpen reports whether Open succeeded and Close has not been called.
func (g *Gateway) IsOpen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.open
}

// Session returns the id of the current link session, empty when closed.
func (g *Gateway) Session() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.open {
		return ""
	}
	return g.session
}

func (g *Gateway) checkOpen() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.open {
		return ErrNotInitialised
	}
	return nil
}

// AssetPath returns the project path schemas are saved for.
func (g *Gateway) AssetPath() string {
	return g.assetPath
}

// LoadSchema loads the saved schema for the project. The result has no
// hashes until it is passed to SetSchema.
func (g *Gateway) LoadSchema() (*schema.Schema, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	s, code := g.api.LoadSchema(g.assetPath)
	if err := code.Err(); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", g.assetPath, err)
	}
	return s, nil
}

// SaveSchema saves s for the project.
func (g *Gateway) SaveSchema(s *schema.Schema) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrIncorrectSchema, err)
	}
	if err := g.api.SaveSchema(g.assetPath, s).Err(); err != nil {
		return fmt.Errorf("save schema %s: %w", g.assetPath, err)
	}
	return nil
}

// SetSchema publishes a copy of s to the host and returns it with the
// per-scene hashes filled in. The returned schema becomes the current one
// and must be treated as read-only.
func (g *Gateway) SetSchema(s *schema.Schema) (*schema.Schema, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncorrectSchema, err)
	}
	hashed := s.Clone()
	if err := g.api.SetSchema(hashed).Err(); err != nil {
		return nil, fmt.Errorf("set schema: %w", err)
	}

	g.mu.Lock()
	g.schema = hashed
	g.mu.Unlock()

	g.log.Info("schema set",
		slog.Int("scenes", len(hashed.Scenes)),
		slog.Int("channels", len(hashed.Channels)))
	return hashed, nil
}

// Schema returns the current schema, nil before SetSchema.
func (g *Gateway) Schema() *schema.Schema {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.schema
}

// Streams returns the streams the host wants rendered.
func (g *Gateway) Streams() ([]StreamDescription, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	streams, code := g.api.GetStreams()
	if err := code.Err(); err != nil {
		return nil, fmt.Errorf("get streams: %w", err)
	}
	return streams, nil
}

// SetFollower switches follower mode on or off.
func (g *Gateway) SetFollower(follower bool) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.api.SetFollower(follower).Err()
}

// BeginFollowerFrame starts a frame in follower mode.
func (g *Gateway) BeginFollowerFrame(tTracked float64) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.api.BeginFollowerFrame(tTracked).Err()
}

// AwaitFrameData blocks for at most timeout waiting for the next tick.
// ErrTimeout means the tick should be skipped.
func (g *Gateway) AwaitFrameData(timeout time.Duration) (FrameData, error) {
	if err := g.checkOpen(); err != nil {
		return FrameData{}, err
	}
	fd, code := g.api.AwaitFrameData(int(timeout / time.Millisecond))
	return fd, code.Err()
}

// GetFrameParameters fills out with the current parameter values of the
// scene with the given hash. ErrBufferOverflow means len(out) does not match
// the scene's parameter count.
func (g *Gateway) GetFrameParameters(hash uint64, out []float32) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.api.GetFrameParameters(hash, out).Err()
}

// SendFrame submits a rendered frame for a stream.
func (g *Gateway) SendFrame(handle StreamHandle, frameType FrameType, data FrameTypeData, response *CameraResponseData) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.api.SendFrame(handle, frameType, data, response).Err()
}

// GetFrameCamera returns the tracked camera for a stream this tick.
func (g *Gateway) GetFrameCamera(handle StreamHandle) (CameraData, error) {
	if err := g.checkOpen(); err != nil {
		return CameraData{}, err
	}
	cam, code := g.api.GetFrameCamera(handle)
	return cam, code.Err()
}

// LogToHost writes msg to the host's log.
func (g *Gateway) LogToHost(msg string) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.api.LogToHost(msg).Err()
}

// SendProfilingData forwards timing samples to the host.
func (g *Gateway) SendProfilingData(entries []ProfilingEntry) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.api.SendProfilingData(entries).Err()
}

// SetStatusMessage sets the status line shown by the host.
func (g *Gateway) SetStatusMessage(msg string) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	return g.api.SetStatusMessage(msg).Err()
}
