// Package ibmformat implements the IBM single-density FM disc encoding and
// the CRC-16-CCITT check used across the disc-tool and FDC layers.
//
// A disc byte occupies 32 bit-slots on the track, four slots per bit cell:
// the first slot of each cell holds the clock bit and the third holds the
// data bit, so pairing (clock[i], data[i]) encodes one bit of each output
// byte. This package only ever deals in already-separated
// 32-bit pulse words — reading the track surface itself is DiscTool's job.
package ibmformat

const (
	// BytesPerTrack is the pulse-word count of a standard single-density
	// track at 300RPM / 250kbit.
	BytesPerTrack = 3125

	// MarkClockPattern is the clock byte accompanying every ID/data/deleted
	// mark on the disc surface.
	MarkClockPattern = 0xC7

	// IDMarkDataPattern, DataMarkDataPattern and DeletedDataMarkDataPattern
	// are the data bytes that, paired with MarkClockPattern, identify a
	// sector header, a sector data field, or a deleted-data field.
	IDMarkDataPattern          = 0xFE
	DataMarkDataPattern        = 0xFB
	DeletedDataMarkDataPattern = 0xF8
)

const (
	crcPoly = 0x1021
	crcInit = 0xFFFF
)

// CRCInit returns the CRC-16-CCITT seed value.
func CRCInit() uint16 {
	return crcInit
}

// CRCAddByte folds one byte into a running CRC-16-CCITT (poly 0x1021, no
// reflection, no final XOR).
func CRCAddByte(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = (crc << 1) ^ crcPoly
		} else {
			crc <<= 1
		}
	}
	return crc
}

// CRCAddRun folds a run of bytes into a running CRC.
func CRCAddRun(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = CRCAddByte(crc, b)
	}
	return crc
}

// PulsesToFM decodes one 32-bit pulse word into its clock and data bytes.
// Bit positions 31, 27, ... 3 hold clock bits; positions 29, 25, ... 1 hold
// data bits, so a clock byte of 0xFF with data 0x00 is 0x88888888.
func PulsesToFM(pulses uint32) (clocks, data byte) {
	// Clock bits sit at pulse positions 31,27,23,19,15,11,7,3 (MSB..LSB of
	// the clock byte); data bits sit two positions to the right of each.
	clockMasks := [8]uint32{0x80000000, 0x08000000, 0x00800000, 0x00080000,
		0x00008000, 0x00000800, 0x00000080, 0x00000008}
	dataMasks := [8]uint32{0x20000000, 0x02000000, 0x00200000, 0x00020000,
		0x00002000, 0x00000200, 0x00000020, 0x00000002}
	clockBits := [8]byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}
	dataBits := [8]byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}

	for i := 0; i < 8; i++ {
		if pulses&clockMasks[i] != 0 {
			clocks |= clockBits[i]
		}
		if pulses&dataMasks[i] != 0 {
			data |= dataBits[i]
		}
	}
	return clocks, data
}

// FMToPulses is the inverse of PulsesToFM: it interleaves a clock byte and a
// data byte into one 32-bit pulse word.
func FMToPulses(clocks, data byte) uint32 {
	clockMasks := [8]uint32{0x80000000, 0x08000000, 0x00800000, 0x00080000,
		0x00008000, 0x00000800, 0x00000080, 0x00000008}
	dataMasks := [8]uint32{0x20000000, 0x02000000, 0x00200000, 0x00020000,
		0x00002000, 0x00000200, 0x00000020, 0x00000002}
	clockBits := [8]byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}
	dataBits := [8]byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}

	var pulses uint32
	for i := 0; i < 8; i++ {
		if clocks&clockBits[i] != 0 {
			pulses |= clockMasks[i]
		}
		if data&dataBits[i] != 0 {
			pulses |= dataMasks[i]
		}
	}
	return pulses
}

// SectorSize decodes the 8271's 3-bit sector-size code into a byte count,
// clamped to 2048 as the disc-tool scanner does.
func SectorSize(sizeCode byte) uint32 {
	size := uint32(128) << (sizeCode & 0x07)
	if size > 2048 {
		size = 2048
	}
	return size
}
