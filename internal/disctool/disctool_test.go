package disctool

import (
	"testing"

	"github.com/beebjit/fdc8271/internal/ibmformat"
)

// memDisc is a minimal in-memory PulseSource for exercising Tool without
// pulling in the discio package's drive simulation.
type memDisc struct {
	tracks  [TracksPerDisc][]uint32
	length  uint32
	flushes int
}

func newMemDisc(length uint32) *memDisc {
	d := &memDisc{length: length}
	for i := range d.tracks {
		d.tracks[i] = make([]uint32, length)
	}
	return d
}

func (d *memDisc) TrackLength(isSideUpper bool, track uint32) uint32 {
	if track >= TracksPerDisc {
		return 0
	}
	return d.length
}

func (d *memDisc) RawPulses(isSideUpper bool, track uint32) []uint32 {
	if track >= TracksPerDisc {
		return nil
	}
	return d.tracks[track]
}

func (d *memDisc) DirtyAndFlush(isSideUpper bool, track uint32) {
	d.flushes++
}

func newToolWithDisc(length uint32) (*Tool, *memDisc) {
	d := newMemDisc(length)
	tool := New()
	tool.SetSource(d)
	return tool, d
}

func TestFillAndReadBackFMData(t *testing.T) {
	tool, _ := newToolWithDisc(16)
	tool.FillFMData(0x4E)

	clocks := make([]byte, 16)
	data := make([]byte, 16)
	tool.SetBytePos(0)
	tool.ReadFMData(clocks, data, 16)

	for i, c := range clocks {
		if c != 0xFF {
			t.Fatalf("byte %d: clock = %#02x, want 0xFF", i, c)
		}
		if data[i] != 0x4E {
			t.Fatalf("byte %d: data = %#02x, want 0x4E", i, data[i])
		}
	}
}

func TestReadPulsesWrapsAtTrackEnd(t *testing.T) {
	tool, _ := newToolWithDisc(4)
	// Write four distinct bytes so we can detect exactly where the read
	// cursor wraps.
	want := []byte{0x11, 0x22, 0x33, 0x44}
	tool.WriteFMData(nil, want, 4)

	// Start reading from the last byte of the track: the second read must
	// wrap the cursor back to byte zero.
	tool.SetBytePos(3)

	clocks := make([]byte, 2)
	data := make([]byte, 2)
	tool.ReadFMData(clocks, data, 2)
	if data[0] != want[3] {
		t.Fatalf("byte at wrap boundary = %#02x, want %#02x", data[0], want[3])
	}
	if data[1] != want[0] {
		t.Fatalf("byte after wrap = %#02x, want %#02x", data[1], want[0])
	}
	if tool.BytePos() != 1 {
		t.Fatalf("cursor after wrap = byte %d, want 1", tool.BytePos())
	}
}

func TestFindSectorsHappyPath(t *testing.T) {
	tool, _ := newToolWithDisc(512)
	tool.FillFMData(0x4E)

	header := []byte{0, 0, 0, 1} // track 0, side 0, sector 0, size code 1 (256 bytes)
	writeIDField(tool, 32, header)

	sectorData := make([]byte, 256)
	for i := range sectorData {
		sectorData[i] = byte(i)
	}
	writeDataField(tool, 128, sectorData, false)

	tool.FindSectors(false)
	sectors := tool.Sectors()
	if len(sectors) != 1 {
		t.Fatalf("got %d sectors, want 1", len(sectors))
	}
	sec := sectors[0]
	if sec.HasHeaderCRCErr {
		t.Errorf("unexpected header CRC error")
	}
	if sec.HasDataCRCErr {
		t.Errorf("unexpected data CRC error")
	}
	if sec.IsDeleted {
		t.Errorf("sector unexpectedly marked deleted")
	}
}

func TestFindSectorsDetectsCorruption(t *testing.T) {
	tool, _ := newToolWithDisc(512)
	tool.FillFMData(0x4E)

	header := []byte{0, 0, 0, 1}
	writeIDField(tool, 32, header)

	sectorData := make([]byte, 256)
	writeDataField(tool, 128, sectorData, false)

	// Corrupt one data byte after the CRC was already written.
	tool.SetBytePos(130)
	clocks := []byte{0xFF}
	tool.WriteFMData(clocks, []byte{0xFF}, 1)

	tool.FindSectors(false)
	sectors := tool.Sectors()
	if len(sectors) != 1 {
		t.Fatalf("got %d sectors, want 1", len(sectors))
	}
	if !sectors[0].HasDataCRCErr {
		t.Errorf("expected data CRC error after corruption")
	}
}

func TestFindSectorsMFMPanics(t *testing.T) {
	tool, _ := newToolWithDisc(64)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for MFM scan")
		}
	}()
	tool.FindSectors(true)
}

// writeIDField writes a full FE-marked ID field (mark + 4 header bytes + CRC)
// at the given byte position, preceded by six 0x00 sync bytes.
func writeIDField(tool *Tool, bytePos uint32, header []byte) {
	tool.SetBytePos(bytePos - 6)
	tool.WriteFMData(nil, make([]byte, 6), 6)
	crc := ibmformat.CRCInit()
	crc = ibmformat.CRCAddByte(crc, ibmformat.IDMarkDataPattern)
	crc = ibmformat.CRCAddRun(crc, header)

	clocks := []byte{ibmformat.MarkClockPattern}
	tool.WriteFMData(clocks, []byte{ibmformat.IDMarkDataPattern}, 1)
	tool.WriteFMData(nil, header, uint32(len(header)))
	tool.WriteFMData(nil, []byte{byte(crc >> 8), byte(crc)}, 2)
}

// writeDataField writes a full FB/F8-marked data field at the given byte
// position, preceded by six 0x00 sync bytes.
func writeDataField(tool *Tool, bytePos uint32, data []byte, deleted bool) {
	tool.SetBytePos(bytePos - 6)
	tool.WriteFMData(nil, make([]byte, 6), 6)
	markByte := byte(ibmformat.DataMarkDataPattern)
	if deleted {
		markByte = ibmformat.DeletedDataMarkDataPattern
	}
	crc := ibmformat.CRCInit()
	crc = ibmformat.CRCAddByte(crc, markByte)
	crc = ibmformat.CRCAddRun(crc, data)

	clocks := []byte{ibmformat.MarkClockPattern}
	tool.WriteFMData(clocks, []byte{markByte}, 1)
	tool.WriteFMData(nil, data, uint32(len(data)))
	tool.WriteFMData(nil, []byte{byte(crc >> 8), byte(crc)}, 2)
}
