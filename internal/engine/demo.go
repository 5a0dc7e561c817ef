package engine

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"

	"renderstream-bridge/internal/schema"
)

// Demo level paths.
const (
	DemoMap    = "/Game/Maps/Main"
	DemoStage  = "/Game/Maps/Stage"
	DemoStudio = "/Game/Maps/Studio"
)

// MainScript is the persistent level's script actor.
type MainScript struct {
	SunIntensity float32    `rs:"category=Lighting,clampmin=0,clampmax=10"`
	SkyTint      color.RGBA `rs:"category=Lighting"`
	Fog          bool       `rs:"category=Atmosphere"`
}

// StageScript is the Stage level's script actor.
type StageScript struct {
	Mode   uint8      `rs:"category=Show,options=Day|Dusk|Night"`
	Offset mgl32.Vec3 `rs:"category=Transform"`
}

// StudioScript is the Studio level's script actor.
type StudioScript struct {
	Backdrop schema.LinearColor `rs:"category=Look"`
	Cue      int32              `rs:"category=Show,clampmin=0,clampmax=99"`
}

// NewDemoWorld returns a world with a persistent level and two unloaded
// streaming levels.
func NewDemoWorld(opts ...Option) *World {
	root := MustActor("Main", &MainScript{SunIntensity: 1, SkyTint: color.RGBA{R: 120, G: 160, B: 255, A: 255}})
	opts = append([]Option{WithChannels("main", "led_wall")}, opts...)
	w := NewWorld(DemoMap, root, opts...)
	w.AddLevel(DemoStage, MustActor("Stage", &StageScript{Mode: 1}), false)
	w.AddLevel(DemoStudio, MustActor("Studio", &StudioScript{Backdrop: schema.LinearColor{A: 1}}), false, "studio")
	return w
}
