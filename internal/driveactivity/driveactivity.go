// Package driveactivity is the optional front end that turns FDC drive
// events into audible seek clicks and an on-screen activity LED per drive,
// mirroring the teacher's real/headless backend split (one build-tagged
// implementation backed by real output libraries, one no-op for headless
// runs and tests).
package driveactivity

import "log/slog"

// Monitor is the sink the fdc package's drive-select/step events are routed
// to. Implementations must tolerate calls from any goroutine.
type Monitor interface {
	// SetLoadHead reports whether drive's head is currently loaded (lit LED,
	// motor running) and, on the loaded edge, triggers a seek click.
	SetLoadHead(drive int, loaded bool)
	// SetTrack updates the track-number readout for drive.
	SetTrack(drive int, track uint32)
	// Close releases the audio/video backends.
	Close() error
}

// Option configures a Monitor at construction time.
type Option func(*config)

type config struct {
	log        *slog.Logger
	sampleRate int
}

// WithLogger overrides the default logger, slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithSampleRate overrides the click synthesizer's sample rate (default
// 44100Hz).
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

func newConfig(opts ...Option) *config {
	c := &config{log: slog.Default(), sampleRate: 44100}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
