package status

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	msgs []string
	err  error
}

func (s *recordingSink) SetStatusMessage(msg string) error {
	s.msgs = append(s.msgs, msg)
	return s.err
}

func TestIndicator_Output(t *testing.T) {
	sink := &recordingSink{}
	ind := New(slog.New(slog.NewTextHandler(io.Discard, nil)), sink)

	_, c := ind.Current()
	assert.Equal(t, Yellow, c)

	ind.Output("Connected to stream", Green)
	line, c := ind.Current()
	assert.Equal(t, Green, c)
	assert.Equal(t, "Connected to stream", line.Message)
	assert.Equal(t, "green", line.Color)
	assert.False(t, line.UpdatedAt.IsZero())

	sink.err = errors.New("closed")
	ind.Output("Error: Unable to create stream", Red)
	_, c = ind.Current()
	assert.Equal(t, Red, c)
	assert.Equal(t, []string{"Connected to stream", "Error: Unable to create stream"}, sink.msgs)
}

func TestIndicator_nil_sink(t *testing.T) {
	ind := New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ind.Output("ok", Green)
	line, _ := ind.Current()
	assert.Equal(t, "ok", line.Message)
}
