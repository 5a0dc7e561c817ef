package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"renderstream-bridge/internal/bridge"
	"renderstream-bridge/internal/engine"
	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/platform/config"
	"renderstream-bridge/internal/platform/logger"
	"renderstream-bridge/internal/platform/metrics"
	"renderstream-bridge/internal/projection"
	"renderstream-bridge/internal/schema"
	"renderstream-bridge/internal/status"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Streams the in-process host requests.
var demoStreams = []link.StreamDescription{
	{Handle: 1, Channel: "main", Name: "main_view", Width: 960, Height: 540, Format: link.FormatBGRA8, Clipping: link.FullClipping},
	{Handle: 2, Channel: "led_wall", Name: "wall_left", Width: 480, Height: 540, Format: link.FormatBGRX8,
		Clipping: link.ProjectionClipping{Left: 0, Right: 0.5, Top: 0, Bottom: 1}},
	{Handle: 3, Channel: "led_wall", Name: "wall_right", Width: 480, Height: 540, Format: link.FormatBGRX8,
		Clipping: link.ProjectionClipping{Left: 0.5, Right: 1, Top: 0, Bottom: 1}},
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = config.Load()
	cfg := config.LoadBridge()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	mode, err := schema.ParseMode(cfg.SceneSelector)
	if err != nil {
		log.Error("invalid scene selector", "error", err)
		return 1
	}
	if err := os.MkdirAll(filepath.Dir(cfg.AssetPath), 0o755); err != nil {
		log.Error("asset directory", "error", err)
		return 1
	}

	host := link.NewLoopback(link.LoopbackConfig{Streams: demoStreams})
	gw := link.NewGateway(host, cfg.AssetPath, log)
	world := engine.NewDemoWorld()
	repo := bridge.NewInMemoryRepository()
	met := metrics.New()
	st := status.New(log, gw)

	proj := projection.DefaultOptions()
	proj.QueueSize = cfg.CameraQueueSize
	proj.WorldToMeters = float32(cfg.WorldToMeters)

	mod, err := bridge.NewModule(bridge.Config{
		AwaitTimeout:      cfg.AwaitTimeout,
		Mode:              mode,
		Projection:        proj,
		InitMaxRetries:    cfg.InitMaxRetries,
		InitRetryInterval: cfg.InitRetryInterval,
	}, gw, world, repo, met, st, log)
	if err != nil {
		log.Error("bridge setup failed", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mod.Start(ctx); err != nil {
		log.Error("bridge start failed", "error", err)
		_ = mod.Close()
		return 1
	}

	driver := bridge.NewDriver(host, cfg.FrameRate, log)
	h := bridge.NewHandler(mod, driver, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics", "/healthz"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveStreams(repo.ActiveStreamCount()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", h.Healthz)
	r.Get("/status", h.GetStatus)
	r.Get("/schema", h.GetSchema)
	r.Get("/streams", h.GetStreams)
	r.Route("/scenes", func(r chi.Router) {
		r.Get("/", h.GetScenes)
		r.Post("/{scene_id}/activate", h.ActivateScene)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mod.Run(gctx) })
	g.Go(func() error { return driver.Run(gctx) })

	if cfg.WatchSchema {
		watcher, err := schema.NewWatcher(link.SchemaFile(cfg.AssetPath), schema.DefaultDebounce, log)
		if err != nil {
			log.Warn("schema watcher disabled", "error", err)
		} else {
			defer watcher.Close()
			g.Go(func() error { return watcher.Run(gctx) })
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-watcher.Changes():
						log.Info("schema file changed")
						mod.RequestSchemaReload()
					}
				}
			})
		}
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	log.Info("server starting",
		"port", cfg.Port,
		"asset_path", cfg.AssetPath,
		"scene_selector", mode.String(),
		"frame_rate", cfg.FrameRate,
		"log_level", cfg.LogLevel,
	)

	exit := 0
	if err := g.Wait(); err != nil {
		log.Error("bridge stopped with error", "error", err)
		exit = 1
	}
	if err := mod.Close(); err != nil {
		log.Error("link shutdown error", "error", err)
		exit = 1
	}
	log.Info("server stopped")
	return exit
}
