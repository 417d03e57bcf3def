package fdc

import (
	"testing"

	"github.com/beebjit/fdc8271/internal/discio"
	"github.com/beebjit/fdc8271/internal/hostcpu"
	"github.com/beebjit/fdc8271/internal/ibmformat"
	"github.com/beebjit/fdc8271/internal/timing"
)

const selectDrive0 = 0x40

// newTestRig builds a Controller with a blank disc inserted in drive 0,
// ready for the priming sequence real disc firmware performs before its
// first command.
func newTestRig(t *testing.T) (*Controller, *discio.Drive, *discio.Disc) {
	t.Helper()
	cpu := hostcpu.New()
	wheel := timing.New()
	c := New(cpu, wheel)
	drive0 := discio.NewDrive()
	drive1 := discio.NewDrive()
	disc0 := discio.NewBlankDisc(600)
	drive0.InsertDisc(disc0)
	c.SetDrives(drive0, drive1)
	return c, drive0, disc0
}

func issueCommand(c *Controller, commandByte byte, params ...byte) {
	c.Write(addrStatusOrCommand, commandByte)
	for _, p := range params {
		c.Write(addrParameterOrData, p)
	}
}

// primeReady spins up and selects drive 0 directly (bypassing the seek FSM)
// then issues a READ_DRIVE_STATUS command while spinning. That command's
// direct register assignment is the only way the controller's sticky
// RDY0/RDY1 latch is ever set, mirroring the priming sequence real disc
// firmware performs before its first seek. The head unload count is set to
// "never" first: with the power-on count of 0, finishing READ_DRIVE_STATUS
// would spin the drive down and deselect it, and the next command's drive
// status read would clear the latched RDY bit again.
func primeReady(t *testing.T, c *Controller) {
	t.Helper()
	issueCommand(c, 0x3A|selectDrive0, regDriveOut, selectDrive0|driveOutLoadHead) // WRITE_SPECIAL_REGISTER
	issueCommand(c, 0x3A|selectDrive0, regHeadLoadUnload, 0xF0)                    // WRITE_SPECIAL_REGISTER
	issueCommand(c, 0x2C|selectDrive0)                                            // READ_DRIVE_STATUS
	if c.getExternalStatus()&statusBusy != 0 {
		t.Fatalf("priming commands should complete synchronously")
	}
}

func pumpRead(t *testing.T, c *Controller, drive *discio.Drive, maxSteps int) []byte {
	t.Helper()
	var out []byte
	for i := 0; i < maxSteps; i++ {
		status := c.getExternalStatus()
		if status&statusNeedData != 0 {
			out = append(out, c.Read(addrData))
			continue
		}
		if status&statusBusy == 0 {
			return out
		}
		drive.Step()
	}
	t.Fatalf("read command did not complete within %d steps", maxSteps)
	return nil
}

func pumpWrite(t *testing.T, c *Controller, drive *discio.Drive, data []byte, maxSteps int) {
	t.Helper()
	idx := 0
	for i := 0; i < maxSteps; i++ {
		status := c.getExternalStatus()
		if status&statusNeedData != 0 {
			if idx >= len(data) {
				t.Fatalf("ran out of data to supply at step %d", i)
			}
			c.Write(addrData, data[idx])
			idx++
			continue
		}
		if status&statusBusy == 0 {
			return
		}
		drive.Step()
	}
	t.Fatalf("write/format command did not complete within %d steps", maxSteps)
}

// formatTwoSectors formats track 0 with two 128-byte sectors (sector
// numbers 0 and 1), supplying the ID field bytes [track, side, sector,
// length-code] for each sector as the FORMAT command's interactive data
// phase demands.
func formatTwoSectors(t *testing.T, c *Controller, drive *discio.Drive) {
	t.Helper()
	const gap1, gap3 = 2, 2
	const sizeCodeAndCount = 0x02 // size code 0 (128 bytes), 2 sectors
	issueCommand(c, 0x23|selectDrive0, 0x00, gap3, sizeCodeAndCount, 0x00, gap1)
	pumpWrite(t, c, drive, []byte{0, 0, 0, 0, 0, 0, 1, 0}, 6000)

	result := c.Read(addrParameterOrData)
	if result != ResultOK {
		t.Fatalf("format result = %#x, want ResultOK", result)
	}
}

func TestFormatThenReadSectorRoundTrip(t *testing.T) {
	c, drive0, _ := newTestRig(t)
	primeReady(t, c)
	formatTwoSectors(t, c, drive0)

	issueCommand(c, 0x12|selectDrive0, 0x00, 0x00) // READ_DATA, single 128-byte sector, track 0 sector 0
	got := pumpRead(t, c, drive0, 6000)

	result := c.Read(addrParameterOrData)
	if result != ResultOK {
		t.Fatalf("read result = %#x, want ResultOK", result)
	}
	if len(got) != 128 {
		t.Fatalf("got %d bytes, want 128", len(got))
	}
	for i, b := range got {
		if b != 0xE5 {
			t.Fatalf("byte %d = %#x, want 0xE5 (format fill pattern)", i, b)
		}
	}
}

func TestReadDataDetectsDataCRCError(t *testing.T) {
	c, drive0, disc0 := newTestRig(t)
	primeReady(t, c)
	formatTwoSectors(t, c, drive0)

	// Sector 0's data field starts right after GAP1 (8 bytes) and the ID
	// field (24 bytes): offset 32 holds the data mark, offset 33 the first
	// content byte. Flip it directly on the disc surface without touching
	// the trailing CRC bytes, so the controller's read-back CRC check must
	// fail.
	pulses := disc0.RawPulses(false, 0)
	const firstDataByteOffset = 33
	_, corrupted := ibmformat.PulsesToFM(pulses[firstDataByteOffset])
	corrupted ^= 0xFF
	pulses[firstDataByteOffset] = ibmformat.FMToPulses(0xFF, corrupted)

	issueCommand(c, 0x12|selectDrive0, 0x00, 0x00)
	pumpRead(t, c, drive0, 6000)

	result := c.Read(addrParameterOrData)
	if result != ResultDataCRCError {
		t.Fatalf("result = %#x, want ResultDataCRCError", result)
	}
}

func TestWriteDataThenReadBack(t *testing.T) {
	c, drive0, _ := newTestRig(t)
	primeReady(t, c)
	formatTwoSectors(t, c, drive0)

	payload := make([]byte, 128)
	for i := range payload {
		payload[i] = byte(i)
	}
	issueCommand(c, 0x4A|selectDrive0, 0x00, 0x00) // WRITE_DATA, single 128-byte sector, track 0 sector 0
	pumpWrite(t, c, drive0, payload, 6000)

	result := c.Read(addrParameterOrData)
	if result != ResultOK {
		t.Fatalf("write result = %#x, want ResultOK", result)
	}

	issueCommand(c, 0x12|selectDrive0, 0x00, 0x00)
	got := pumpRead(t, c, drive0, 6000)
	result = c.Read(addrParameterOrData)
	if result != ResultOK {
		t.Fatalf("read-back result = %#x, want ResultOK", result)
	}
	if len(got) != 128 {
		t.Fatalf("got %d bytes, want 128", len(got))
	}
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("byte %d = %#x, want %#x", i, b, byte(i))
		}
	}
}

func TestWriteDataLateDMAAborts(t *testing.T) {
	c, drive0, _ := newTestRig(t)
	primeReady(t, c)
	formatTwoSectors(t, c, drive0)

	issueCommand(c, 0x4A|selectDrive0, 0x00, 0x00)

	suppliedFirst := false
	for i := 0; i < 6000; i++ {
		status := c.getExternalStatus()
		if status&statusBusy == 0 {
			break
		}
		if status&statusNeedData != 0 && !suppliedFirst {
			c.Write(addrData, 0x11)
			suppliedFirst = true
		}
		drive0.Step()
	}

	result := c.Read(addrParameterOrData)
	if result != ResultLateDMA {
		t.Fatalf("result = %#x, want ResultLateDMA", result)
	}
}

func TestWriteDataAbortsWhenWriteProtected(t *testing.T) {
	c, drive0, _ := newTestRig(t)
	primeReady(t, c)
	formatTwoSectors(t, c, drive0)

	drive0.SetWriteProtect(true)

	issueCommand(c, 0x4A|selectDrive0, 0x00, 0x00)
	pumpWrite(t, c, drive0, nil, 6000)

	result := c.Read(addrParameterOrData)
	if result != ResultWriteProtected {
		t.Fatalf("result = %#x, want ResultWriteProtected", result)
	}
}

func TestReadIDReturnsFormattedSectorHeaders(t *testing.T) {
	c, drive0, _ := newTestRig(t)
	primeReady(t, c)
	formatTwoSectors(t, c, drive0)

	// READ_ID (0x1B) with a non-zero second parameter skips the seek and
	// starts syncing for the next header directly; the third parameter asks
	// for one header, which is sector 0's [track, side, sector, size-code].
	issueCommand(c, 0x1B|selectDrive0, 0x00, 0x01, 0x01, 0x01, 0x01)
	got := pumpRead(t, c, drive0, 6000)

	result := c.Read(addrParameterOrData)
	if result != ResultOK {
		t.Fatalf("result = %#x, want ResultOK", result)
	}
	want := []byte{0, 0, 0, 0}
	if string(got) != string(want) {
		t.Fatalf("header = % x, want % x", got, want)
	}
}
