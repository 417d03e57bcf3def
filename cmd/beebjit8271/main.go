// Command beebjit8271 wires together a cycle-accurate Intel 8271 floppy
// disc controller, its two simulated drives, the bit-addressable DiscTool
// scanner, and the 6502-to-host JIT compiler into one runnable program,
// the way the teacher's main.go assembles a system bus, CPU and
// peripherals before handing control to a GUI event loop.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/beebjit/fdc8271/internal/discio"
	"github.com/beebjit/fdc8271/internal/disctool"
	"github.com/beebjit/fdc8271/internal/driveactivity"
	"github.com/beebjit/fdc8271/internal/fdc"
	"github.com/beebjit/fdc8271/internal/hostasm"
	"github.com/beebjit/fdc8271/internal/hostcpu"
	"github.com/beebjit/fdc8271/internal/jit"
	"github.com/beebjit/fdc8271/internal/monitor"
	"github.com/beebjit/fdc8271/internal/timing"
)

// bytesPerTrack is the single-density FM track length in pulse words: 3125
// bytes/track at 250kbps, rounded down to a whole number of 2µs cells.
const bytesPerTrack = 3125

func main() {
	interactive := flag.Bool("monitor", false, "attach the interactive command monitor instead of the demo run loop")
	commandLog := flag.Bool("log-commands", false, "log every FDC command as it is dispatched")
	compileAddr := flag.Uint("compile-at", 0xE000, "6502 address of a block to JIT-compile as a startup smoke test")
	flag.Parse()

	log := slog.Default()

	cpu := hostcpu.New()
	wheel := timing.New()

	drive0, drive1 := discio.NewDrive(), discio.NewDrive()
	disc0 := discio.NewBlankDisc(bytesPerTrack)
	drive0.InsertDisc(disc0)

	activity, err := driveactivity.New(driveactivity.WithLogger(log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "beebjit8271: failed to start drive activity front end: %v\n", err)
		os.Exit(1)
	}
	defer activity.Close()

	controller := fdc.New(cpu, wheel,
		fdc.WithLogger(log),
		fdc.WithCommandLogging(*commandLog),
		fdc.WithActivityMonitor(activity))
	controller.SetDrives(drive0, drive1)

	tool := disctool.New(disctool.WithLogger(log))
	tool.SetSource(disc0)

	if err := smokeTestCompile(log, uint16(*compileAddr)); err != nil {
		log.Warn("beebjit8271: startup JIT smoke test failed", "err", err)
	}

	if *interactive {
		runMonitor(controller, tool)
		return
	}

	runDemo(log, wheel, drive0)
}

// runMonitor attaches the raw-terminal command monitor and blocks until the
// operator quits or stdin closes.
func runMonitor(controller *fdc.Controller, tool *disctool.Tool) {
	mon := monitor.New(controller, tool)
	if err := mon.Attach(); err != nil {
		fmt.Fprintf(os.Stderr, "beebjit8271: %v\n", err)
		os.Exit(1)
	}
	defer mon.Detach()

	if err := mon.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "beebjit8271: monitor exited: %v\n", err)
		os.Exit(1)
	}
}

// runDemo spins drive 0 and steps it through a handful of revolutions so
// the drive-activity front end has something to show without requiring an
// attached terminal or a loaded program image.
func runDemo(log *slog.Logger, wheel *timing.Wheel, drive0 *discio.Drive) {
	log.Info("beebjit8271: spinning drive 0 through a demo revolution")
	drive0.StartSpinning()
	for i := 0; i < bytesPerTrack*2; i++ {
		drive0.Step()
		wheel.Advance(timing.MillisecondTicks / 10)
	}
	drive0.StopSpinning()
}

// flatMemory is a bare 64KB address space satisfying jit.MemReader; loading
// a real program image is out of scope, so every location reads back as a
// BRK (0x00) opcode.
type flatMemory [1 << 16]byte

func (m *flatMemory) ReadByte(addr uint16) byte { return m[addr] }

// smokeTestCompile compiles one block starting at addr to confirm the
// compiler pipeline (decode, dataflow tracking, host-bytecode emission) is
// wired correctly end to end before any real program is loaded.
func smokeTestCompile(log *slog.Logger, addr uint16) error {
	mem := &flatMemory{}
	resolver := func(addr6502 uint16) int32 { return int32(addr6502) }

	compiler := jit.New(mem, resolver)
	asm := hostasm.New()
	compiler.CompileBlock(asm, addr)

	log.Debug("beebjit8271: compiled startup block", "addr", fmt.Sprintf("%#04x", addr), "instrs", asm.Len())
	return nil
}
