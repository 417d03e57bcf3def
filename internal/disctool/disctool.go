// Package disctool provides a bit-addressable view over a disc track's
// 2µs-pulse buffer, plus the two-pass sector scanner used to discover and
// CRC-check sectors without going through the FDC's own shift register.
package disctool

import (
	"log/slog"

	"github.com/beebjit/fdc8271/internal/ibmformat"
)

// TracksPerDisc bounds the track argument accepted by Tool; tracks at or
// beyond it are treated as not present, matching a standard 80-track
// double-sided disc.
const TracksPerDisc = 80

// maxSectors caps the sector scanner's descriptor table; exceeding it on a
// single track is a format error too severe to recover from, matching the
// original's fatal bail.
const maxSectors = 32

// PulseSource is the disc-image collaborator: whatever owns the raw pulse
// buffers for each side/track of a disc. A Tool never allocates or frees a
// buffer itself; it only ever reads and writes through this interface.
type PulseSource interface {
	// TrackLength returns the pulse-word count of the given side/track.
	TrackLength(isSideUpper bool, track uint32) uint32
	// RawPulses returns the mutable pulse-word buffer for the given
	// side/track, or nil if the track is not present.
	RawPulses(isSideUpper bool, track uint32) []uint32
	// DirtyAndFlush is called after a write burst completes.
	DirtyAndFlush(isSideUpper bool, track uint32)
}

// Sector is a scanned sector descriptor. BitPosHeader and BitPosData are zero
// when the corresponding mark was not found.
type Sector struct {
	BitPosHeader    uint32
	BitPosData      uint32
	HeaderBytes     [6]byte
	IsDeleted       bool
	HasHeaderCRCErr bool
	HasDataCRCErr   bool
}

// Tool is a bit-positioned cursor over one side/track of a disc's pulse
// buffers. It is not safe for concurrent use, and callers must not interleave
// a Tool scan or read/write burst with FDC activity on the same track.
type Tool struct {
	log *slog.Logger

	source      PulseSource
	isSideUpper bool
	track       uint32
	trackLength uint32
	pos         uint32 // bit position, i.e. byte position * 32

	sectors []Sector
}

// Option configures a Tool at construction.
type Option func(*Tool)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.log = l }
}

// New creates a Tool with no disc attached.
func New(opts ...Option) *Tool {
	t := &Tool{log: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetSource attaches (or replaces) the disc-image collaborator, refreshing
// the current track's length.
func (t *Tool) SetSource(source PulseSource) {
	t.source = source
	t.SetTrack(t.track)
}

// SetSideUpper selects which physical side subsequent operations address.
func (t *Tool) SetSideUpper(isSideUpper bool) {
	t.isSideUpper = isSideUpper
	t.SetTrack(t.track)
}

// SetTrack selects the track subsequent operations address and invalidates
// any previously scanned sector descriptors.
func (t *Tool) SetTrack(track uint32) {
	t.track = track
	t.sectors = nil
	if t.source == nil {
		t.trackLength = 0
		return
	}
	t.trackLength = t.source.TrackLength(t.isSideUpper, track)
}

// BytePos returns the current position in whole bytes (32 bits each).
func (t *Tool) BytePos() uint32 {
	return t.pos / 32
}

// SetBytePos sets the current position in whole bytes, wrapping to zero if
// the position is at or beyond the track length.
func (t *Tool) SetBytePos(pos uint32) {
	if pos >= t.trackLength {
		pos = 0
	}
	t.pos = pos * 32
}

func (t *Tool) pulses() []uint32 {
	if t.source == nil {
		return nil
	}
	if t.track >= TracksPerDisc {
		return nil
	}
	return t.source.RawPulses(t.isSideUpper, t.track)
}

// readPulses reads 32 bits starting at the current sub-bit position,
// stitching across word boundaries and wrapping at track end, then advances
// position by 32. Returns zero if the disc is absent or the track is out of
// range.
func (t *Tool) readPulses() uint32 {
	pulseBuf := t.pulses()
	if pulseBuf == nil {
		return 0
	}

	pos := t.pos
	wordPos := pos / 32
	bitPos := pos % 32

	pulses := pulseBuf[wordPos] << bitPos
	if wordPos == t.trackLength-1 {
		t.pos = bitPos
	} else {
		t.pos += 32
	}
	if bitPos > 0 {
		nextWordPos := wordPos + 1
		if nextWordPos == t.trackLength {
			nextWordPos = 0
		}
		pulses |= pulseBuf[nextWordPos] >> (32 - bitPos)
	}
	return pulses
}

// ReadFMData reads len bytes of FM-encoded data starting at the current
// position, returning the separated clock and data streams and advancing
// position. Either output slice may be nil to discard that stream.
func (t *Tool) ReadFMData(clocks, data []byte, length uint32) {
	for i := uint32(0); i < length; i++ {
		pulses := t.readPulses()
		c, d := ibmformat.PulsesToFM(pulses)
		if clocks != nil {
			clocks[i] = c
		}
		if data != nil {
			data[i] = d
		}
	}
}

// WriteFMData writes len bytes of FM-encoded data starting at the current
// position, which must be byte-aligned (a multiple of 32 bits). A nil clocks
// slice writes 0xFF (the usual non-mark clock pattern) for every byte.
func (t *Tool) WriteFMData(clocks, data []byte, length uint32) {
	if t.pos%32 != 0 {
		panic("disctool: WriteFMData requires a byte-aligned position")
	}

	pulseBuf := t.pulses()
	if pulseBuf == nil {
		return
	}

	wordPos := t.pos / 32
	for i := uint32(0); i < length; i++ {
		clock := byte(0xFF)
		if clocks != nil {
			clock = clocks[i]
		}
		pulseBuf[wordPos] = ibmformat.FMToPulses(clock, data[i])
		wordPos++
		if wordPos == t.trackLength {
			wordPos = 0
			t.pos = 0
		} else {
			t.pos += 32
		}
	}

	t.commitWrite()
}

// FillFMData overwrites the entire current track with one repeated data
// byte, clock 0xFF, and resets position to zero.
func (t *Tool) FillFMData(data byte) {
	pulseBuf := t.pulses()
	if pulseBuf == nil {
		return
	}

	pulses := ibmformat.FMToPulses(0xFF, data)
	for i := range pulseBuf {
		pulseBuf[i] = pulses
	}
	t.pos = 0

	t.commitWrite()
}

func (t *Tool) commitWrite() {
	if t.source == nil {
		return
	}
	t.source.DirtyAndFlush(t.isSideUpper, t.track)
}

// markFingerprint is the pulse-space encoding of the sync byte (clocks 0xFF,
// data 0x00) that precedes every mark: the high 32 bits of the 64-bit mark
// detector equal this value, masked to 0xFFFFFFFF00000000, exactly when the
// byte before the last 32 shifted-in bits is that sync byte.
const markFingerprint = 0x8888888800000000

// FindSectors scans the current track for ID and data marks and populates
// the sector descriptor table, recomputing CRCs along the way. isMFM must be
// false; MFM decoding is not supported by this tool.
func (t *Tool) FindSectors(isMFM bool) {
	if isMFM {
		panic("disctool: MFM is not supported")
	}

	t.sectors = nil

	pulseBuf := t.pulses()
	if pulseBuf == nil {
		return
	}

	sectors := make([]Sector, 0, maxSectors)

	// Pass 1: walk the track one bit at a time, maintaining a 64-bit mark
	// detector, to find ID and data marks.
	bitLength := t.trackLength * 32
	var markDetector uint64
	var pulses uint32
	var curHeader *int // index into sectors of the most recent header

	for i := uint32(0); i < bitLength; i++ {
		if i&31 == 0 {
			pulses = pulseBuf[i/32]
		}
		markDetector <<= 1
		if pulses&0x80000000 != 0 {
			markDetector |= 1
		}
		pulses <<= 1

		if markDetector&0xFFFFFFFF00000000 != markFingerprint {
			continue
		}

		clocks, data := ibmformat.PulsesToFM(uint32(markDetector))
		if clocks != ibmformat.MarkClockPattern {
			continue
		}

		switch data {
		case ibmformat.IDMarkDataPattern:
			if len(sectors) == maxSectors {
				panic("disctool: too many sector headers on track")
			}
			sectors = append(sectors, Sector{BitPosHeader: i + 1})
			idx := len(sectors) - 1
			curHeader = &idx
		case ibmformat.DataMarkDataPattern, ibmformat.DeletedDataMarkDataPattern:
			if curHeader == nil || sectors[*curHeader].BitPosData != 0 {
				t.log.Warn("sector data without header", "track", t.track)
				continue
			}
			sectors[*curHeader].BitPosData = i + 1
			sectors[*curHeader].IsDeleted = data == ibmformat.DeletedDataMarkDataPattern
			curHeader = nil
		}
	}

	// Pass 2: walk the discovered headers, read header and data fields, and
	// verify CRCs.
	var sectorData [2048 + 2]byte
	for i := range sectors {
		sec := &sectors[i]

		t.pos = sec.BitPosHeader
		t.ReadFMData(nil, sec.HeaderBytes[:], 6)

		crc := ibmformat.CRCInit()
		crc = ibmformat.CRCAddByte(crc, ibmformat.IDMarkDataPattern)
		crc = ibmformat.CRCAddRun(crc, sec.HeaderBytes[:4])
		discCRC := uint16(sec.HeaderBytes[4])<<8 | uint16(sec.HeaderBytes[5])
		if crc != discCRC {
			sec.HasHeaderCRCErr = true
		}

		if sec.BitPosData == 0 {
			t.log.Warn("sector header without data", "track", t.track)
			continue
		}

		t.pos = sec.BitPosData
		crc = ibmformat.CRCInit()
		markByte := byte(ibmformat.DataMarkDataPattern)
		if sec.IsDeleted {
			markByte = ibmformat.DeletedDataMarkDataPattern
		}
		crc = ibmformat.CRCAddByte(crc, markByte)

		sectorSize := ibmformat.SectorSize(sec.HeaderBytes[3])
		t.ReadFMData(nil, sectorData[:sectorSize+2], sectorSize+2)
		crc = ibmformat.CRCAddRun(crc, sectorData[:sectorSize])
		discCRC = uint16(sectorData[sectorSize])<<8 | uint16(sectorData[sectorSize+1])
		if crc != discCRC {
			sec.HasDataCRCErr = true
		}
	}

	t.sectors = sectors
}

// Sectors returns the sector descriptors found by the most recent
// FindSectors call.
func (t *Tool) Sectors() []Sector {
	return t.sectors
}
