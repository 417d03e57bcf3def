//go:build !headless

package driveactivity

import (
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

const numDrives = 2

// realMonitor drives a tiny ebiten window (one LED plus a track readout per
// drive) and an oto player that renders a short synthesized click whenever a
// drive's head loads, the same way the teacher's EbitenOutput and OtoPlayer
// turn emulator state into pixels and samples.
type realMonitor struct {
	log *slog.Logger

	mu     sync.Mutex
	loaded [numDrives]bool
	track  [numDrives]uint32

	otoCtx    *oto.Context
	otoPlayer *oto.Player
	click     *clickSource

	started bool
}

// New builds a Monitor backed by a real ebiten window and oto audio output.
func New(opts ...Option) (Monitor, error) {
	cfg := newConfig(opts...)

	otoOptions := &oto.NewContextOptions{
		SampleRate:   cfg.sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	}
	ctx, ready, err := oto.NewContext(otoOptions)
	if err != nil {
		return nil, fmt.Errorf("driveactivity: opening audio context: %w", err)
	}
	<-ready

	m := &realMonitor{
		log:    cfg.log,
		otoCtx: ctx,
		click:  newClickSource(cfg.sampleRate),
	}
	m.otoPlayer = ctx.NewPlayer(m.click)

	go func() {
		ebiten.SetWindowSize(240, 120)
		ebiten.SetWindowTitle("beebjit8271 drive activity")
		if err := ebiten.RunGame(m); err != nil {
			m.log.Warn("driveactivity: ebiten exited", "err", err)
		}
	}()

	return m, nil
}

func (m *realMonitor) SetLoadHead(drive int, loaded bool) {
	if drive < 0 || drive >= numDrives {
		return
	}
	m.mu.Lock()
	wasLoaded := m.loaded[drive]
	m.loaded[drive] = loaded
	m.mu.Unlock()

	if loaded && !wasLoaded {
		m.click.trigger()
		if m.otoPlayer != nil && !m.started {
			m.started = true
			m.otoPlayer.Play()
		}
	}
}

func (m *realMonitor) SetTrack(drive int, track uint32) {
	if drive < 0 || drive >= numDrives {
		return
	}
	m.mu.Lock()
	m.track[drive] = track
	m.mu.Unlock()
}

func (m *realMonitor) Close() error {
	if m.otoPlayer != nil {
		_ = m.otoPlayer.Close()
	}
	return nil
}

// Update implements ebiten.Game; there is no keyboard/mouse input to handle.
func (m *realMonitor) Update() error { return nil }

// Draw implements ebiten.Game, painting one LED and a track readout per
// drive.
func (m *realMonitor) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF})

	m.mu.Lock()
	defer m.mu.Unlock()
	for drive := 0; drive < numDrives; drive++ {
		y := 20 + drive*40
		ledColor := color.RGBA{R: 0x40, G: 0x10, B: 0x10, A: 0xFF}
		if m.loaded[drive] {
			ledColor = color.RGBA{R: 0xFF, G: 0x20, B: 0x20, A: 0xFF}
		}
		for dy := 0; dy < 16; dy++ {
			for dx := 0; dx < 16; dx++ {
				screen.Set(20+dx, y+dy, ledColor)
			}
		}
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("drive %d  track %2d", drive, m.track[drive]), 50, y+4)
	}
}

// Layout implements ebiten.Game with a fixed, small logical size.
func (m *realMonitor) Layout(_, _ int) (int, int) { return 240, 120 }

// clickSource is an io.Reader producing a short, exponentially decaying
// sine burst on demand — a synthesized seek click rather than a sampled
// asset, since the teacher's SoundChip source isn't part of this module's
// domain.
type clickSource struct {
	sampleRate int
	pos        atomic.Int64
	active     atomic.Bool
}

func newClickSource(sampleRate int) *clickSource {
	return &clickSource{sampleRate: sampleRate}
}

func (c *clickSource) trigger() {
	c.pos.Store(0)
	c.active.Store(true)
}

const clickDurationSeconds = 0.02
const clickFrequencyHz = 1200.0

func (c *clickSource) Read(p []byte) (int, error) {
	numSamples := len(p) / 4
	durationSamples := int(clickDurationSeconds * float64(c.sampleRate))

	for i := 0; i < numSamples; i++ {
		var sample float32
		if c.active.Load() {
			pos := c.pos.Add(1) - 1
			if int(pos) >= durationSamples {
				c.active.Store(false)
			} else {
				t := float64(pos) / float64(c.sampleRate)
				envelope := math.Exp(-t * 80)
				sample = float32(math.Sin(2*math.Pi*clickFrequencyHz*t) * envelope * 0.6)
			}
		}
		bits := math.Float32bits(sample)
		p[i*4+0] = byte(bits)
		p[i*4+1] = byte(bits >> 8)
		p[i*4+2] = byte(bits >> 16)
		p[i*4+3] = byte(bits >> 24)
	}
	return len(p), nil
}
