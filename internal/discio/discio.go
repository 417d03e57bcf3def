// Package discio provides the Disc-image and Drive collaborator stand-ins
// named in spec.md §6: enough of a simulated disc and drive to exercise the
// FDC and DiscTool end to end, without parsing any real disc-image file
// format (SSD/HFE/raw), which spec.md §1 explicitly keeps out of scope.
package discio

import (
	"github.com/beebjit/fdc8271/internal/disctool"
	"github.com/beebjit/fdc8271/internal/ibmformat"
)

// TracksPerDisc mirrors disctool.TracksPerDisc: the disc image and the tool
// that reads it must agree on the addressable track range.
const TracksPerDisc = disctool.TracksPerDisc

// Disc is an in-memory double-sided disc image: one mutable pulse-word
// track buffer per side/track. It satisfies disctool.PulseSource.
type Disc struct {
	bytesPerTrack uint32
	tracks        [2][TracksPerDisc][]uint32
}

// NewBlankDisc creates a disc with every track filled with unformatted
// filler (clock 0xFF, data 0xFF), bytesPerTrack pulse words long.
func NewBlankDisc(bytesPerTrack uint32) *Disc {
	d := &Disc{bytesPerTrack: bytesPerTrack}
	fill := ibmformat.FMToPulses(0xFF, 0xFF)
	for side := range d.tracks {
		for track := range d.tracks[side] {
			buf := make([]uint32, bytesPerTrack)
			for i := range buf {
				buf[i] = fill
			}
			d.tracks[side][track] = buf
		}
	}
	return d
}

func sideIndex(isSideUpper bool) int {
	if isSideUpper {
		return 1
	}
	return 0
}

// TrackLength implements disctool.PulseSource.
func (d *Disc) TrackLength(isSideUpper bool, track uint32) uint32 {
	if track >= TracksPerDisc {
		return 0
	}
	return d.bytesPerTrack
}

// RawPulses implements disctool.PulseSource.
func (d *Disc) RawPulses(isSideUpper bool, track uint32) []uint32 {
	if track >= TracksPerDisc {
		return nil
	}
	return d.tracks[sideIndex(isSideUpper)][track]
}

// DirtyAndFlush implements disctool.PulseSource. This in-memory image has
// nothing to flush to.
func (d *Disc) DirtyAndFlush(isSideUpper bool, track uint32) {}

// ByteCallback is invoked once per simulated disc byte time-slice (64µs at
// single density), carrying the data and clock bytes decoded from the pulse
// word currently under the head.
type ByteCallback func(data, clocks byte)

// Drive is a single simulated floppy drive: a disc may be inserted, the
// drive may spin up/down, seek between tracks, and read/write the byte
// currently under the head.
type Drive struct {
	disc         *Disc
	isSideUpper  bool
	track        uint32
	headPos      uint32
	spinning     bool
	writeProtect bool
	cb           ByteCallback
}

// NewDrive creates an empty, stopped drive with no disc inserted.
func NewDrive() *Drive {
	return &Drive{}
}

// InsertDisc mounts disc in the drive, resetting the head to byte zero of
// the current track.
func (d *Drive) InsertDisc(disc *Disc) {
	d.disc = disc
	d.headPos = 0
}

// SetWriteProtect sets the inserted disc's write-protect tab state.
func (d *Drive) SetWriteProtect(wp bool) { d.writeProtect = wp }

// StartSpinning begins rotation.
func (d *Drive) StartSpinning() { d.spinning = true }

// StopSpinning halts rotation.
func (d *Drive) StopSpinning() { d.spinning = false }

// IsSpinning reports whether the drive is currently rotating.
func (d *Drive) IsSpinning() bool { return d.spinning }

// SelectSide chooses which physical surface the head reads/writes.
func (d *Drive) SelectSide(isSideUpper bool) { d.isSideUpper = isSideUpper }

// IsWriteProtect reports the inserted disc's write-protect state.
func (d *Drive) IsWriteProtect() bool { return d.writeProtect }

// GetTrack returns the track the head is currently positioned over.
func (d *Drive) GetTrack() uint32 { return d.track }

// SeekTrack moves the head by delta tracks (±1 per call, as the FDC steps
// one track at a time), clamping at track zero.
func (d *Drive) SeekTrack(delta int) {
	t := int(d.track) + delta
	if t < 0 {
		t = 0
	}
	d.track = uint32(t)
}

// IsIndexPulse reports whether the head is currently at the once-per-
// rotation index position (byte zero of the track).
func (d *Drive) IsIndexPulse() bool { return d.headPos == 0 }

// isUsable reports whether the drive is spinning with a disc present.
func (d *Drive) isUsable() bool {
	return d.spinning && d.disc != nil
}

// GetHeadPosition returns the current byte offset within the track.
func (d *Drive) GetHeadPosition() uint32 { return d.headPos }

// SetByteCallback registers the function invoked on every Step.
func (d *Drive) SetByteCallback(cb ByteCallback) { d.cb = cb }

func (d *Drive) trackLen() uint32 {
	if d.disc == nil {
		return 0
	}
	return d.disc.TrackLength(d.isSideUpper, d.track)
}

// Step advances the drive by one byte time-slice: it decodes the pulse word
// currently under the head and invokes the byte callback (which may call
// WriteByte to overwrite that same slot before the head moves on), then
// advances the head position, wrapping at track end.
func (d *Drive) Step() {
	if !d.isUsable() {
		return
	}
	length := d.trackLen()
	if length == 0 {
		return
	}

	pulses := d.disc.RawPulses(d.isSideUpper, d.track)
	clocks, data := ibmformat.PulsesToFM(pulses[d.headPos])

	if d.cb != nil {
		d.cb(data, clocks)
	}

	d.headPos++
	if d.headPos >= length {
		d.headPos = 0
	}
}

// WriteByte overwrites the pulse word at the head's current position. It is
// meant to be called from within the byte callback, writing the slot the
// callback was just invoked for.
func (d *Drive) WriteByte(data, clocks byte) {
	if d.disc == nil {
		return
	}
	length := d.trackLen()
	if length == 0 {
		return
	}
	pulses := d.disc.RawPulses(d.isSideUpper, d.track)
	pulses[d.headPos] = ibmformat.FMToPulses(clocks, data)
}
