// Package monitor is an optional raw-terminal command monitor for
// single-stepping FDC commands and dumping DiscTool sector scans, grounded
// on the teacher's interactive debug monitor (command loop shape) and its
// terminal host (raw-mode stdin handling via golang.org/x/term).
package monitor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/beebjit/fdc8271/internal/disctool"
	"github.com/beebjit/fdc8271/internal/fdc"
)

// Stepper is the subset of fdc.Controller the monitor drives directly.
type Stepper interface {
	Read(addr uint16) byte
	Write(addr uint16, val byte)
}

// Monitor is a line-oriented command loop over a raw terminal, issuing FDC
// register reads/writes and DiscTool sector dumps in response to typed
// commands. Only instantiated for interactive use — never in tests.
type Monitor struct {
	log *slog.Logger

	fdc  Stepper
	tool *disctool.Tool

	in  io.Reader
	out io.Writer

	fd           int
	oldTermState *term.State
}

// Option configures a Monitor at construction time.
type Option func(*Monitor)

// WithLogger overrides the default logger, slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithIO overrides stdin/stdout, for driving the command loop without a
// real terminal.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(m *Monitor) { m.in, m.out = in, out }
}

// New creates a command monitor over the given controller and disc-tool
// scanner.
func New(c *fdc.Controller, tool *disctool.Tool, opts ...Option) *Monitor {
	m := &Monitor{
		log:  slog.Default(),
		fdc:  c,
		tool: tool,
		in:   os.Stdin,
		out:  os.Stdout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach puts stdin into raw mode (no-op if WithIO redirected away from a
// real terminal) so the command loop can read a line at a time without the
// OS line-discipline interfering. Call Detach to restore it.
func (m *Monitor) Attach() error {
	f, ok := m.in.(*os.File)
	if !ok || f != os.Stdin {
		return nil
	}
	m.fd = int(f.Fd())
	oldState, err := term.MakeRaw(m.fd)
	if err != nil {
		return fmt.Errorf("monitor: failed to set raw mode: %w", err)
	}
	m.oldTermState = oldState
	return nil
}

// Detach restores the terminal to its prior state.
func (m *Monitor) Detach() {
	if m.oldTermState == nil {
		return
	}
	_ = term.Restore(m.fd, m.oldTermState)
	m.oldTermState = nil
}

// Run reads commands line by line until EOF, "quit", or a read error other
// than interrupted-by-signal.
func (m *Monitor) Run() error {
	reader := bufio.NewReader(m.in)
	for {
		fmt.Fprint(m.out, "8271> ")
		line, err := reader.ReadString('\n')
		if line != "" {
			if stop := m.dispatch(strings.TrimRight(line, "\r\n")); stop {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if pe, ok := err.(*os.PathError); ok && pe.Err == syscall.EINTR {
				continue
			}
			return err
		}
	}
}

// dispatch parses and executes one command line, returning true if the
// monitor should stop.
func (m *Monitor) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "q":
		return true

	case "status":
		status := m.fdc.Read(0)
		fmt.Fprintf(m.out, "status=%#02x\n", status)

	case "read", "r":
		addr := parseUint(fields, 1, 0)
		fmt.Fprintf(m.out, "[%d] = %#02x\n", addr, m.fdc.Read(uint16(addr)))

	case "write", "w":
		addr := parseUint(fields, 1, 0)
		val := parseUint(fields, 2, 0)
		m.fdc.Write(uint16(addr), byte(val))
		fmt.Fprintf(m.out, "[%d] <= %#02x\n", addr, val)

	case "track":
		track := parseUint(fields, 1, 0)
		m.tool.SetTrack(uint32(track))
		fmt.Fprintf(m.out, "track set to %d\n", track)

	case "scan":
		isMFM := len(fields) > 1 && fields[1] == "mfm"
		m.tool.FindSectors(isMFM)
		m.dumpSectors()

	case "help", "?":
		m.printHelp()

	default:
		fmt.Fprintf(m.out, "unrecognized command %q (try \"help\")\n", fields[0])
	}
	return false
}

func (m *Monitor) dumpSectors() {
	sectors := m.tool.Sectors()
	if len(sectors) == 0 {
		fmt.Fprintln(m.out, "no sectors found")
		return
	}
	for _, s := range sectors {
		track, side, sector, sizeCode := s.HeaderBytes[0], s.HeaderBytes[1], s.HeaderBytes[2], s.HeaderBytes[3]
		size := 128 << (sizeCode & 0x07)

		idStatus := "ok"
		if s.HasHeaderCRCErr {
			idStatus = "ID-CRC-ERR"
		}
		dataStatus := "ok"
		switch {
		case s.HasDataCRCErr:
			dataStatus = "data-CRC-ERR"
		case s.IsDeleted:
			dataStatus = "deleted"
		}
		fmt.Fprintf(m.out, "t=%-3d h=%d s=%-3d size=%-4d id=%s data=%s\n",
			track, side, sector, size, idStatus, dataStatus)
	}
}

func (m *Monitor) printHelp() {
	fmt.Fprint(m.out, ""+
		"status              show the external status register\n"+
		"read|r ADDR         read one FDC-relative MMIO register\n"+
		"write|w ADDR VAL    write one FDC-relative MMIO register\n"+
		"track N             position the disc-tool scanner at track N\n"+
		"scan [mfm]          scan the current track for sector headers\n"+
		"quit|q              exit the monitor\n")
}

func parseUint(fields []string, idx int, def uint64) uint64 {
	if idx >= len(fields) {
		return def
	}
	v, err := strconv.ParseUint(fields[idx], 0, 32)
	if err != nil {
		return def
	}
	return v
}
