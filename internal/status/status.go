// Package status keeps the single user-visible status line of the bridge
// and mirrors it to the host.
package status

import (
	"log/slog"
	"sync"
	"time"
)

// Color is the severity shown next to the status line.
type Color int

const (
	Green Color = iota
	Yellow
	Red
)

func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	default:
		return "red"
	}
}

// Sink receives status lines; the link gateway forwards them to the host.
type Sink interface {
	SetStatusMessage(msg string) error
}

// Line is a snapshot of the current status.
type Line struct {
	Message   string    `json:"message"`
	Color     string    `json:"color"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Indicator holds the current status. It is safe for concurrent use.
type Indicator struct {
	log  *slog.Logger
	sink Sink

	mu    sync.Mutex
	line  Line
	color Color
}

// New returns an Indicator; sink may be nil.
func New(log *slog.Logger, sink Sink) *Indicator {
	return &Indicator{log: log, sink: sink, line: Line{Color: Yellow.String()}, color: Yellow}
}

// Output replaces the status line.
func (i *Indicator) Output(msg string, c Color) {
	i.mu.Lock()
	i.line = Line{Message: msg, Color: c.String(), UpdatedAt: time.Now().UTC()}
	i.color = c
	i.mu.Unlock()

	switch c {
	case Red:
		i.log.Error("status", slog.String("message", msg))
	case Yellow:
		i.log.Warn("status", slog.String("message", msg))
	default:
		i.log.Info("status", slog.String("message", msg))
	}

	if i.sink != nil {
		if err := i.sink.SetStatusMessage(msg); err != nil {
			i.log.Debug("status not forwarded", slog.String("error", err.Error()))
		}
	}
}

// Current returns the current line and its colour.
func (i *Indicator) Current() (Line, Color) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.line, i.color
}
