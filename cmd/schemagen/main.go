// Command schemagen generates the schema of the demo world and saves it
// where the bridge loads it from.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"

	"renderstream-bridge/internal/engine"
	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/platform/config"
	"renderstream-bridge/internal/platform/logger"
	"renderstream-bridge/internal/schema"
)

func main() {
	_ = config.Load()

	mode := flag.String("mode", config.GetEnv("RS_SCENE_SELECTOR", "streaming_levels"), "Scene selector: none, streaming_levels, maps")
	asset := flag.String("asset", config.GetEnv("RS_ASSET_PATH", "./assets/demo"), "Project asset path the schema is saved for")
	toStdout := flag.Bool("print", false, "Write the schema to stdout as JSON instead of saving it")
	flag.Parse()

	log := logger.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "text"))

	m, err := schema.ParseMode(*mode)
	if err != nil {
		log.Error("invalid mode", "error", err)
		os.Exit(2)
	}

	world := engine.NewDemoWorld()
	s, err := schema.Generate(m, world.MapPath(), world.Caches())
	if err != nil {
		log.Error("generate schema", "error", err)
		os.Exit(1)
	}
	if err := s.Validate(); err != nil {
		log.Error("generated schema is invalid", "error", err)
		os.Exit(1)
	}

	if *toStdout {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			log.Error("write schema", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(filepath.Dir(*asset), 0o755); err != nil {
		log.Error("asset directory", "error", err)
		os.Exit(1)
	}
	gw := link.NewGateway(link.NewLoopback(link.LoopbackConfig{}), *asset, log)
	if err := gw.Open(); err != nil {
		log.Error("open link", "error", err)
		os.Exit(1)
	}
	err = gw.SaveSchema(s)
	_ = gw.Close()
	if err != nil {
		log.Error("save schema", "error", err)
		os.Exit(1)
	}
	log.Info("schema saved",
		"path", link.SchemaFile(*asset),
		"mode", m.String(),
		"scenes", s.SceneCount(),
		"channels", len(s.Channels))
}
