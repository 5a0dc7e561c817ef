package bridge

import (
	"time"

	"renderstream-bridge/internal/link"
	"renderstream-bridge/internal/scene"
	"renderstream-bridge/internal/status"
)

// StreamState is the published state of one output stream.
type StreamState struct {
	Handle      link.StreamHandle       `json:"handle"`
	Name        string                  `json:"name"`
	Channel     string                  `json:"channel"`
	Viewport    string                  `json:"viewport,omitempty"`
	Width       int                     `json:"width"`
	Height      int                     `json:"height"`
	Format      string                  `json:"format"`
	TargetBytes int                     `json:"target_bytes"`
	Clipping    link.ProjectionClipping `json:"clipping"`
	Ready       bool                    `json:"ready"`
	FenceValue  uint64                  `json:"fence_value"`
	FramesSent  uint64                  `json:"frames_sent"`
	FrameErrors uint64                  `json:"frame_errors"`
	CameraDrops uint64                  `json:"camera_drops"`
	LastError   string                  `json:"last_error,omitempty"`

	// Metadata managed by the repository.
	UpdatedAt time.Time `json:"updated_at"`
}

// SceneState is the published state of the scene selector.
type SceneState struct {
	ActiveScene uint32           `json:"active_scene"`
	LastResult  string           `json:"last_result"`
	LastError   string           `json:"last_error,omitempty"`
	Specs       []scene.SpecView `json:"specs"`
	Stats       scene.Stats      `json:"stats"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Status is the body of GET /status.
type Status struct {
	Session     string      `json:"session"`
	Connected   bool        `json:"connected"`
	Line        status.Line `json:"status"`
	Ticks       uint64      `json:"ticks"`
	Skipped     uint64      `json:"skipped_ticks"`
	ActiveScene uint32      `json:"active_scene"`
	Streams     int         `json:"streams"`
}
