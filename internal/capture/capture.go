// Package capture provides the frame sources feeding the analysis
// engine: a synthetic emulated camera for development and tests, and a
// directory replay source for recorded sessions. Real camera drivers
// plug in behind the same Source interface.
package capture

import (
	"context"
	"time"

	"github.com/openrange-dev/spotter/internal/geom"
)

// Handler receives one luminance frame per capture tick. The engine's
// Analyse method satisfies this signature.
type Handler func(geom.Frame)

// Params are the camera parameters the engine reads but does not own.
type Params struct {
	Width         int           `json:"width,omitempty"`
	Height        int           `json:"height,omitempty"`
	ExposureTime  time.Duration `json:"exposure_time,omitempty"`
	Contrast      int           `json:"contrast"`
	FPS           float64       `json:"fps"`
}

// Source delivers frames at its own cadence until the context is
// cancelled. Real-time pacing is the source's responsibility; the
// handler must not be assumed to pace itself.
type Source interface {
	// Run blocks, invoking h once per captured frame, until ctx is
	// cancelled. Returns ctx.Err() on cancellation.
	Run(ctx context.Context, h Handler) error
	// Params returns the current camera parameters.
	Params() Params
	// SetContrast adjusts the capture contrast in the range -100..100.
	SetContrast(v int) error
}

// runPaced drives a frame generator at the given rate until ctx is done.
func runPaced(ctx context.Context, fps float64, next func() geom.Frame, h Handler) error {
	if fps <= 0 {
		fps = 15
	}
	period := time.Duration(float64(time.Second) / fps)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h(next())
		}
	}
}
