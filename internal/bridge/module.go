package bridge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/platform/metrics"
	"renderstream-bridge/internal/projection"
	"renderstream-bridge/internal/scene"
	"renderstream-bridge/internal/schema"
	"renderstream-bridge/internal/status"
	"renderstream-bridge/internal/stream"
)

// Engine is the world the bridge selects scenes in and renders from.
type Engine interface {
	scene.World
	MapPath() string
	Caches() []schema.LevelCache
	Advance()
	Render(dst *stream.HostTexture, frame uint64)
}

// Config holds the runtime settings of a Module.
type Config struct {
	AwaitTimeout      time.Duration
	Mode              schema.Mode
	Projection        projection.Options
	InitMaxRetries    int
	InitRetryInterval time.Duration
}

// DefaultConfig returns the settings used when the environment sets none.
func DefaultConfig() Config {
	return Config{
		AwaitTimeout:      500 * time.Millisecond,
		Mode:              schema.ModeStreamingLevels,
		Projection:        projection.DefaultOptions(),
		InitMaxRetries:    5,
		InitRetryInterval: 500 * time.Millisecond,
	}
}

type rebuildRequest struct {
	streams []link.StreamDescription
	done    chan struct{}
}

// Module runs the bridge. The link goroutine owns the scene selector and
// the camera queues' producer side; the render goroutine owns the frame
// streams and their render targets.
type Module struct {
	cfg      Config
	gw       *link.Gateway
	engine   Engine
	selector scene.Selector
	policies *projection.Registry
	device   stream.Device
	cmd      stream.CommandList
	status   *status.Indicator
	repo     Repository
	metrics  *metrics.Metrics
	log      *slog.Logger

	frames   chan uint64
	rebuilds chan rebuildRequest
	reloads  chan struct{}

	rendering   atomic.Bool
	ticks       atomic.Uint64
	skipped     atomic.Uint64
	activeScene atomic.Uint32

	// link goroutine
	frame uint64

	// render goroutine
	streams map[link.StreamHandle]*stream.FrameStream
	targets map[link.StreamHandle]*stream.HostTexture
}

// NewModule wires a Module. m may be nil, in which case the module records
// into a private registry.
func NewModule(cfg Config, gw *link.Gateway, eng Engine, repo Repository, m *metrics.Metrics, st *status.Indicator, log *slog.Logger) (*Module, error) {
	log = log.With(slog.String("component", "bridge"))
	selector, err := scene.New(cfg.Mode, gw, log)
	if err != nil {
		return nil, fmt.Errorf("scene selector: %w", err)
	}
	if m == nil {
		m = metrics.New()
	}
	if st == nil {
		st = status.New(log, gw)
	}
	dev := stream.HostMemoryDevice{}
	return &Module{
		cfg:      cfg,
		gw:       gw,
		engine:   eng,
		selector: selector,
		policies: projection.NewRegistry(cfg.Projection, log),
		device:   dev,
		cmd:      dev,
		status:   st,
		repo:     repo,
		metrics:  m,
		log:      log,
		frames:   make(chan uint64, 1),
		rebuilds: make(chan rebuildRequest),
		reloads:  make(chan struct{}, 1),
		streams:  make(map[link.StreamHandle]*stream.FrameStream),
		targets:  make(map[link.StreamHandle]*stream.HostTexture),
	}, nil
}

// Start opens the link, loads or generates the schema and sets up the
// streams the host requests. It must be called before Run.
func (m *Module) Start(ctx context.Context) error {
	m.status.Output("Initialising RenderStream", status.Yellow)
	if err := m.open(ctx); err != nil {
		m.status.Output("Error: Unable to initialise RenderStream", status.Red)
		return err
	}
	if err := m.loadSchema(); err != nil {
		m.status.Output("Error: Unable to load schema", status.Red)
		return err
	}
	descs, err := m.gw.Streams()
	if err != nil {
		m.countLinkError(err)
		return fmt.Errorf("get streams: %w", err)
	}
	m.setupStreams(descs)
	return nil
}

func (m *Module) open(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	if m.cfg.InitRetryInterval > 0 {
		b.InitialInterval = m.cfg.InitRetryInterval
	}
	retries := m.cfg.InitMaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := m.gw.Open()
		switch {
		case err == nil, errors.Is(err, link.ErrAlreadyInitialised):
			return nil
		case errors.Is(err, link.ErrIncompatibleVersion):
			return backoff.Permanent(err)
		}
		m.countLinkError(err)
		m.log.Warn("link open failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return err
	}, policy)
}

// loadSchema loads the saved schema, generating and saving one from the
// world when none exists, and hands it to the selector. Link goroutine only.
func (m *Module) loadSchema() error {
	s, err := m.gw.LoadSchema()
	if errors.Is(err, link.ErrNotFound) {
		s, err = schema.Generate(m.cfg.Mode, m.engine.MapPath(), m.engine.Caches())
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		if err := m.gw.SaveSchema(s); err != nil {
			return fmt.Errorf("save schema: %w", err)
		}
		m.log.Info("generated schema",
			slog.String("mode", m.cfg.Mode.String()),
			slog.Int("scenes", s.SceneCount()))
	} else if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	hashed, err := m.gw.SetSchema(s)
	if err != nil {
		return fmt.Errorf("set schema: %w", err)
	}
	if err := m.selector.OnSchemaLoaded(m.engine, hashed); err != nil {
		return fmt.Errorf("bind schema: %w", err)
	}
	m.publishScenes(m.activeScene.Load(), scene.ResultSkipped, nil)
	return nil
}

// RequestSchemaReload asks the link goroutine to reload the schema before
// its next tick. Requests made while one is pending are merged.
func (m *Module) RequestSchemaReload() {
	select {
	case m.reloads <- struct{}{}:
	default:
	}
}

// Run drives the link and render goroutines until ctx is done or the link
// is shut down.
func (m *Module) Run(ctx context.Context) error {
	m.rendering.Store(true)
	defer m.rendering.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.renderLoop(ctx) })
	g.Go(func() error { return m.linkLoop(ctx) })
	return g.Wait()
}

func (m *Module) linkLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.reloads:
			m.reloadSchema()
		default:
		}
		if err := m.Tick(ctx); err != nil {
			return err
		}
	}
}

func (m *Module) reloadSchema() {
	if err := m.loadSchema(); err != nil {
		m.log.Error("schema reload failed", slog.String("error", err.Error()))
		m.status.Output("Error: Unable to reload schema", status.Red)
		return
	}
	m.metrics.IncSchemaReloads()
	m.status.Output("Schema reloaded", status.Green)
}

// Tick runs one link iteration: wait for the host's frame data, select the
// scene, queue the tracked cameras and hand the frame to the renderer. A
// timeout skips the tick. It returns an error only when the link is gone.
func (m *Module) Tick(ctx context.Context) error {
	m.ticks.Add(1)
	m.metrics.IncTicks()

	fd, err := m.gw.AwaitFrameData(m.cfg.AwaitTimeout)
	if err != nil {
		return m.awaitFailed(ctx, err)
	}
	if fd.Reset() {
		m.log.Info("host requested reset", slog.Float64("t_tracked", fd.TTracked))
	}

	m.engine.Advance()

	res, err := m.selector.ApplyScene(m.engine, fd.Scene)
	if !errors.Is(err, scene.ErrSceneOutOfRange) {
		m.activeScene.Store(fd.Scene)
		m.metrics.SetActiveScene(fd.Scene)
	}
	if err != nil {
		m.countLinkError(err)
		m.log.Warn("apply scene failed",
			slog.Uint64("scene", uint64(fd.Scene)),
			slog.String("error", err.Error()))
	}
	m.publishScenes(m.activeScene.Load(), res, err)

	for _, p := range m.policies.Policies() {
		s := p.Stream()
		if s == nil || s.Handle() == 0 {
			continue
		}
		cam, err := m.gw.GetFrameCamera(s.Handle())
		if err != nil {
			m.countLinkError(err)
			m.log.Debug("no camera for stream",
				slog.String("stream", s.Name()),
				slog.String("error", err.Error()))
			continue
		}
		p.ApplyCameraData(fd, cam)
	}

	m.frame++
	select {
	case m.frames <- m.frame:
	default:
		m.log.Debug("renderer busy, frame merged", slog.Uint64("frame", m.frame))
	}
	return nil
}

func (m *Module) awaitFailed(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, link.ErrTimeout):
		m.skipped.Add(1)
		m.metrics.IncSkippedTicks()
		return nil
	case errors.Is(err, link.ErrNotInitialised):
		return fmt.Errorf("await frame data: %w", err)
	case errors.Is(err, link.ErrStreamsChanged):
		m.countLinkError(err)
		descs, err := m.gw.Streams()
		if err != nil {
			m.countLinkError(err)
			m.log.Error("get streams failed", slog.String("error", err.Error()))
			return nil
		}
		m.log.Info("streams changed", slog.Int("streams", len(descs)))
		m.rebuild(ctx, descs)
		return nil
	}

	m.skipped.Add(1)
	m.metrics.IncSkippedTicks()
	m.countLinkError(err)
	m.log.Warn("await frame data failed", slog.String("error", err.Error()))
	select {
	case <-ctx.Done():
	case <-time.After(m.cfg.AwaitTimeout):
	}
	return nil
}

// rebuild recreates the streams on the render goroutine and waits for it.
// Without a running render goroutine the streams are rebuilt in place.
func (m *Module) rebuild(ctx context.Context, descs []link.StreamDescription) {
	if !m.rendering.Load() {
		m.setupStreams(descs)
		return
	}
	req := rebuildRequest{streams: descs, done: make(chan struct{})}
	select {
	case m.rebuilds <- req:
	case <-ctx.Done():
		return
	}
	select {
	case <-req.done:
	case <-ctx.Done():
	}
}

// renderLoop leaves the streams set up when it returns; Close releases
// them once the link goroutine has exited too.
func (m *Module) renderLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.rebuilds:
			m.setupStreams(req.streams)
			close(req.done)
		case frame := <-m.frames:
			m.renderFrame(ctx, frame)
		}
	}
}

func (m *Module) teardownStreams() {
	for _, s := range m.streams {
		s.Teardown()
	}
	clear(m.streams)
	clear(m.targets)
}

// setupStreams replaces every stream with the host's current set. Render
// goroutine only, or before Run.
func (m *Module) setupStreams(descs []link.StreamDescription) {
	m.teardownStreams()
	m.policies.Reset()

	states := make([]StreamState, 0, len(descs))
	for _, d := range descs {
		res := image.Pt(int(d.Width), int(d.Height))
		st := StreamState{
			Handle:   d.Handle,
			Name:     d.Name,
			Channel:  d.Channel,
			Width:    res.X,
			Height:   res.Y,
			Format:   d.Format.String(),
			Clipping: d.Clipping,
		}

		fs := stream.New(m.gw, m.device, m.status, m.log)
		if !fs.Setup(d.Name, res, d.Channel, d.Clipping, d.Handle, d.Format) {
			st.LastError = "stream setup failed"
			states = append(states, st)
			continue
		}
		target, err := stream.NewHostTexture(res, d.Format)
		if err != nil {
			fs.Teardown()
			st.LastError = err.Error()
			states = append(states, st)
			continue
		}
		params := map[string]string{"channel": d.Channel}
		p, err := m.policies.Create(projection.PolicyType, d.Name, params, fs)
		if err != nil {
			fs.Teardown()
			st.LastError = err.Error()
			states = append(states, st)
			continue
		}

		m.streams[d.Handle] = fs
		m.targets[d.Handle] = target
		st.Viewport = p.ViewportID()
		st.TargetBytes = len(target.Pix())
		st.Ready = true
		st.FenceValue = fs.FenceValue()
		states = append(states, st)
	}

	m.repo.ReplaceStreams(states)
	m.metrics.SetActiveStreams(m.repo.ActiveStreamCount())
}

// renderFrame renders and submits one frame per stream that has a queued
// camera. Render goroutine only.
func (m *Module) renderFrame(ctx context.Context, frame uint64) {
	start := time.Now()
	var drops uint64
	for _, p := range m.policies.Policies() {
		s := p.Stream()
		drops += p.Dropped()
		if s == nil || s.Handle() == 0 {
			continue
		}
		target, ok := m.targets[s.Handle()]
		if !ok {
			continue
		}
		view, ok := p.CalculateView()
		if !ok {
			continue
		}

		m.engine.Render(target, frame)
		err := p.ApplyWarpBlend(m.cmd, target, image.Rectangle{Max: target.Size()})
		if err != nil {
			m.metrics.IncFrameErrors()
			m.countLinkError(err)
			m.log.Warn("send frame failed",
				slog.String("stream", s.Name()),
				slog.String("error", err.Error()))
		} else {
			m.metrics.IncFramesSent()
		}
		if rerr := m.repo.RecordFrame(s.Handle(), s.FenceValue(), p.Dropped(), err); rerr != nil {
			m.log.Debug("frame not recorded", slog.String("stream", s.Name()), slog.String("error", rerr.Error()))
		}

		if m.log.Enabled(ctx, slog.LevelDebug) {
			proj, _ := p.ProjectionMatrix()
			m.log.Debug("frame sent",
				slog.String("trace_id", uuid.NewString()),
				slog.String("stream", s.Name()),
				slog.Uint64("frame", frame),
				slog.Float64("t_tracked", view.Response.TTracked),
				slog.Bool("fresh", view.Fresh),
				slog.Any("location", view.Location),
				slog.Any("projection", proj),
				slog.Uint64("fence_value", s.FenceValue()))
		}
	}
	m.metrics.SetCameraDrops(drops)

	elapsed := float32(time.Since(start).Seconds() * 1000)
	if err := m.gw.SendProfilingData([]link.ProfilingEntry{{Name: "render_ms", Value: elapsed}}); err != nil {
		m.log.Debug("profiling not sent", slog.String("error", err.Error()))
	}
}

func (m *Module) publishScenes(active uint32, res scene.Result, err error) {
	st := SceneState{
		ActiveScene: active,
		LastResult:  res.String(),
		Specs:       m.selector.Specs(),
		Stats:       m.selector.Stats(),
	}
	if err != nil {
		st.LastError = err.Error()
	}
	m.repo.SetScenes(st)
	m.metrics.SetSceneStats(st.Stats.LoadsRequested, st.Stats.ValidationFailures)
}

func (m *Module) countLinkError(err error) {
	var code link.Code
	if errors.As(err, &code) {
		m.metrics.IncLinkError(code.String())
	}
}

// Status returns a snapshot for the status API.
func (m *Module) Status() Status {
	line, _ := m.status.Current()
	return Status{
		Session:     m.gw.Session(),
		Connected:   m.gw.IsOpen(),
		Line:        line,
		Ticks:       m.ticks.Load(),
		Skipped:     m.skipped.Load(),
		ActiveScene: m.activeScene.Load(),
		Streams:     m.repo.ActiveStreamCount(),
	}
}

// Schema returns the schema the link is using, nil before Start.
func (m *Module) Schema() *schema.Schema {
	return m.gw.Schema()
}

// Repository returns the published state.
func (m *Module) Repository() Repository {
	return m.repo
}

// Close shuts the link down. Call it after Run has returned.
func (m *Module) Close() error {
	m.teardownStreams()
	return m.gw.Close()
}
