package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"renderstream-bridge/internal/link"
)

// FramePusher queues frame data on an in-process host.
type FramePusher interface {
	PushFrame(fd link.FrameData) bool
}

// Driver is the clock of an in-process host: it pushes frame data at a
// fixed rate for the scene most recently selected.
type Driver struct {
	host     FramePusher
	rate     uint32
	interval time.Duration
	log      *slog.Logger
	start    time.Time

	scene   atomic.Uint32
	reset   atomic.Bool
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDriver returns a Driver pushing frameRate frames per second; a
// non-positive rate means 60.
func NewDriver(host FramePusher, frameRate int, log *slog.Logger) *Driver {
	if frameRate <= 0 {
		frameRate = 60
	}
	return &Driver{
		host:     host,
		rate:     uint32(frameRate),
		interval: time.Second / time.Duration(frameRate),
		log:      log.With(slog.String("component", "driver")),
		start:    time.Now(),
	}
}

// SetScene selects the scene id sent with the following frames.
func (d *Driver) SetScene(id uint32) {
	if d.scene.Swap(id) != id {
		d.log.Info("scene selected", slog.Uint64("scene", uint64(id)))
	}
}

// Scene returns the selected scene id.
func (d *Driver) Scene() uint32 { return d.scene.Load() }

// Reset sets the reset flag on the next frame.
func (d *Driver) Reset() { d.reset.Store(true) }

// Pushed and Dropped count frames queued and frames refused by a full host
// queue.
func (d *Driver) Pushed() uint64  { return d.pushed.Load() }
func (d *Driver) Dropped() uint64 { return d.dropped.Load() }

// Push queues one frame stamped with now.
func (d *Driver) Push(now time.Time) bool {
	fd := link.FrameData{
		TTracked:             now.Sub(d.start).Seconds(),
		LocalTime:            now.Sub(d.start).Seconds(),
		LocalTimeDelta:       d.interval.Seconds(),
		FrameRateNumerator:   d.rate,
		FrameRateDenominator: 1,
		Scene:                d.scene.Load(),
	}
	if d.reset.Swap(false) {
		fd.Flags |= link.FlagReset
	}
	if !d.host.PushFrame(fd) {
		d.dropped.Add(1)
		return false
	}
	d.pushed.Add(1)
	return true
}

// Run pushes frames until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			d.Push(now)
		}
	}
}
