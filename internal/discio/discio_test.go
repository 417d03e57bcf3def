package discio

import (
	"testing"

	"github.com/beebjit/fdc8271/internal/ibmformat"
)

func TestBlankDiscReadsFillerByte(t *testing.T) {
	disc := NewBlankDisc(16)
	drive := NewDrive()
	drive.InsertDisc(disc)
	drive.StartSpinning()

	var gotData, gotClocks byte
	drive.SetByteCallback(func(data, clocks byte) {
		gotData, gotClocks = data, clocks
	})
	drive.Step()

	if gotData != 0xFF || gotClocks != 0xFF {
		t.Fatalf("got data=%#x clocks=%#x, want 0xFF/0xFF", gotData, gotClocks)
	}
}

func TestWriteByteOverwritesCurrentSlot(t *testing.T) {
	disc := NewBlankDisc(4)
	drive := NewDrive()
	drive.InsertDisc(disc)
	drive.StartSpinning()

	drive.SetByteCallback(func(data, clocks byte) {
		drive.WriteByte(0x42, 0xC7)
	})
	drive.Step()

	pulses := disc.RawPulses(false, 0)
	clocks, data := ibmformat.PulsesToFM(pulses[0])
	if data != 0x42 || clocks != 0xC7 {
		t.Fatalf("got data=%#x clocks=%#x, want 0x42/0xc7", data, clocks)
	}
}

func TestStepWrapsAtTrackEnd(t *testing.T) {
	disc := NewBlankDisc(2)
	drive := NewDrive()
	drive.InsertDisc(disc)
	drive.StartSpinning()

	drive.Step()
	if drive.GetHeadPosition() != 1 {
		t.Fatalf("head pos = %d, want 1", drive.GetHeadPosition())
	}
	drive.Step()
	if drive.GetHeadPosition() != 0 {
		t.Fatalf("head pos = %d, want wrap to 0", drive.GetHeadPosition())
	}
}

func TestIndexPulseOnlyAtHeadZero(t *testing.T) {
	disc := NewBlankDisc(2)
	drive := NewDrive()
	drive.InsertDisc(disc)
	drive.StartSpinning()

	if !drive.IsIndexPulse() {
		t.Fatalf("expected index pulse at head position 0")
	}
	drive.Step()
	if drive.IsIndexPulse() {
		t.Fatalf("did not expect index pulse at head position 1")
	}
}

func TestSeekTrackClampsAtZero(t *testing.T) {
	drive := NewDrive()
	drive.SeekTrack(-1)
	if drive.GetTrack() != 0 {
		t.Fatalf("track = %d, want 0 (clamped)", drive.GetTrack())
	}
	drive.SeekTrack(5)
	drive.SeekTrack(-2)
	if drive.GetTrack() != 3 {
		t.Fatalf("track = %d, want 3", drive.GetTrack())
	}
}

func TestStepWithoutSpinningOrDiscIsNoop(t *testing.T) {
	drive := NewDrive()
	called := false
	drive.SetByteCallback(func(data, clocks byte) { called = true })
	drive.Step()
	if called {
		t.Fatalf("callback should not fire with no disc inserted")
	}

	disc := NewBlankDisc(4)
	drive.InsertDisc(disc)
	drive.Step()
	if called {
		t.Fatalf("callback should not fire while stopped")
	}
}

func TestWriteProtectAndSideSelection(t *testing.T) {
	disc := NewBlankDisc(4)
	drive := NewDrive()
	drive.InsertDisc(disc)
	drive.SetWriteProtect(true)
	if !drive.IsWriteProtect() {
		t.Fatalf("expected write protect on")
	}

	drive.SelectSide(true)
	drive.StartSpinning()
	drive.SetByteCallback(func(data, clocks byte) {
		drive.WriteByte(0x11, 0x22)
	})
	drive.Step()

	upperPulses := disc.RawPulses(true, 0)
	clocks, data := ibmformat.PulsesToFM(upperPulses[0])
	if data != 0x11 || clocks != 0x22 {
		t.Fatalf("upper side not written: data=%#x clocks=%#x", data, clocks)
	}

	lowerPulses := disc.RawPulses(false, 0)
	clocks, data = ibmformat.PulsesToFM(lowerPulses[0])
	if data != 0xFF || clocks != 0xFF {
		t.Fatalf("lower side should be untouched: data=%#x clocks=%#x", data, clocks)
	}
}
