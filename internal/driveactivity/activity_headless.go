//go:build headless

package driveactivity

// headlessMonitor discards every event — used for tests and servers with no
// terminal or audio device attached.
type headlessMonitor struct{}

// New builds a Monitor. Under the headless build tag it is a pure no-op,
// matching the teacher's audio_backend_headless.go / video_backend_headless.go
// split.
func New(opts ...Option) (Monitor, error) {
	newConfig(opts...) // validate options even though nothing consumes them
	return headlessMonitor{}, nil
}

func (headlessMonitor) SetLoadHead(drive int, loaded bool) {}
func (headlessMonitor) SetTrack(drive int, track uint32)   {}
func (headlessMonitor) Close() error                       { return nil }
