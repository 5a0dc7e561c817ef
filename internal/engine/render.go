package engine

import (
	"image/color"

	"github.com/cespare/xxhash/v2"

	"renderstream-bridge/internal/stream"
)

var markerColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// SceneColor is the flat colour a scene renders with. Each level gets a
// stable colour derived from its package path.
func SceneColor(pkg string) color.RGBA {
	h := xxhash.Sum64String(pkg)
	return color.RGBA{R: byte(h), G: byte(h >> 8), B: byte(h >> 16), A: 0xff}
}

// Render draws the current scene into dst: the visible level's colour
// with a vertical marker column that moves one pixel per frame.
func (w *World) Render(dst *stream.HostTexture, frame uint64) {
	pkg := w.mapPath
	if l := w.VisibleLevel(); l != nil {
		pkg = l.pkg
	}
	dst.Fill(SceneColor(pkg))

	size := dst.Size()
	x := int(frame % uint64(size.X))
	for y := 0; y < size.Y; y++ {
		dst.SetBGRA(x, y, markerColor)
	}
}
