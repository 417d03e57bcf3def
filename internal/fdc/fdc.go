// Package fdc emulates the Intel 8271 floppy disc controller: its register
// file, command dispatch, seek/read/write/format finite state machines, and
// NMI signalling, driven byte-by-byte by the DriveIO collaborator and timed
// by the Timer collaborator.
package fdc

import (
	"fmt"
	"log/slog"

	"github.com/beebjit/fdc8271/internal/discio"
	"github.com/beebjit/fdc8271/internal/hostcpu"
	"github.com/beebjit/fdc8271/internal/ibmformat"
	"github.com/beebjit/fdc8271/internal/timing"
)

const (
	timerNone = iota
	timerSeekStep
	timerPostSeek
)

// Controller is an Intel 8271 floppy disc controller instance.
type Controller struct {
	log *slog.Logger

	cpu    *hostcpu.CPU
	wheel  *timing.Wheel
	timer  uint32
	timerState int

	drive0, drive1 *discio.Drive
	currentDrive   *discio.Drive

	logCommands bool
	activity    ActivityMonitor

	parameterCB parameterCallback
	indexPulseCB indexPulseCallback

	regs     [numRegisters]byte
	driveOut byte

	shiftRegister uint32
	numShifts     uint32

	state            fdcState
	stateCount       uint32
	stateIsIndexPulse bool
	crc              uint16
	onDiscCRC        uint16
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the default logger, slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithCommandLogging enables per-command diagnostic logging, mirroring the
// controller's optional verbose command trace.
func WithCommandLogging(enabled bool) Option {
	return func(c *Controller) { c.logCommands = enabled }
}

// ActivityMonitor receives drive-activity notifications (head load/unload
// and track changes) for an optional front end to render as an LED and seek
// click; see internal/driveactivity.
type ActivityMonitor interface {
	SetLoadHead(drive int, loaded bool)
	SetTrack(drive int, track uint32)
}

// WithActivityMonitor attaches a front end that observes head-load and
// seek events. Nil (the default) disables activity reporting.
func WithActivityMonitor(m ActivityMonitor) Option {
	return func(c *Controller) { c.activity = m }
}

func (c *Controller) reportActivity(drive int, loaded bool, track uint32) {
	if c.activity == nil {
		return
	}
	c.activity.SetLoadHead(drive, loaded)
	c.activity.SetTrack(drive, track)
}

func (c *Controller) driveIndex(d *discio.Drive) int {
	switch d {
	case c.drive0:
		return 0
	case c.drive1:
		return 1
	default:
		return -1
	}
}

// New creates a Controller wired to the given CPU (for NMI) and Timer, in
// power-on-reset state.
func New(cpu *hostcpu.CPU, wheel *timing.Wheel, opts ...Option) *Controller {
	c := &Controller{
		log:   slog.Default(),
		cpu:   cpu,
		wheel: wheel,
	}
	c.timer = wheel.RegisterTimer(c.onTimerFired)
	for _, opt := range opts {
		opt(c)
	}
	c.powerOnReset()
	return c
}

// SetDrives attaches the two physical drives and registers this controller
// as their byte callback.
func (c *Controller) SetDrives(drive0, drive1 *discio.Drive) {
	c.drive0 = drive0
	c.drive1 = drive1
	drive0.SetByteCallback(func(data, clocks byte) { c.byteCallback(drive0, data, clocks) })
	drive1.SetByteCallback(func(data, clocks byte) { c.byteCallback(drive1, data, clocks) })
}

func (c *Controller) getStatus() byte { return c.regs[regInternalStatus] }

func (c *Controller) getExternalStatus() byte {
	status := c.getStatus()
	status &^= 0x03
	status &^= statusCommandFull
	return status
}

func (c *Controller) statusRaise(bits byte) {
	c.regs[regInternalStatus] |= bits
	c.updateNMI()
}

func (c *Controller) statusLower(bits byte) {
	c.regs[regInternalStatus] &^= bits
	c.updateNMI()
}

func (c *Controller) updateNMI() {
	level := 0
	if c.getStatus()&statusNMI != 0 {
		level = 1
	}
	firing := c.cpu.CheckIRQFiring(hostcpu.NMI)

	if firing && level == 1 {
		c.log.Error("edge triggered NMI already high")
	}

	c.cpu.SetIRQLevel(hostcpu.NMI, level)
}

func (c *Controller) setResult(result byte) {
	c.regs[regInternalResult] = result
	c.statusRaise(statusResultReady | statusNMI)
}

func (c *Controller) internalCommand() byte {
	return (c.regs[regInternalCommand] & 0x3C) >> 2
}

// breakReset aborts any in-progress command, idles the sequencer, deselects
// every drive (spinning them down), and clears status — but leaves the
// result/data registers alone, matching a write of 1 to the reset MMIO
// register.
func (c *Controller) breakReset() {
	c.commandAbort()
	c.setState(stateIdle)
	c.clearCallbacks()
	c.setDriveOut(0)
	c.statusLower(c.getStatus())
}

// powerOnReset performs a breakReset and additionally clears the entire
// register file, as if power had just been applied.
func (c *Controller) powerOnReset() {
	c.breakReset()
	for i := range c.regs {
		c.regs[i] = 0
	}
	c.stateCount = 0
	c.stateIsIndexPulse = false
}

// Read services an MMIO read from the host CPU at the given FDC-relative
// address.
func (c *Controller) Read(addr uint16) byte {
	switch addr & 0x07 {
	case addrStatusOrCommand:
		return c.getExternalStatus()
	case addrParameterOrData:
		result := c.regs[regInternalResult]
		c.statusLower(statusResultReady | statusNMI)
		return result
	case addrData, addrData + 1, addrData + 2, addrData + 3:
		c.statusLower(statusNeedData | statusNMI)
		return c.regs[regInternalData]
	case 2:
		return c.regs[regInternalCountMSB]
	case 3:
		return c.regs[regInternalCountLSB]
	default:
		c.log.Warn("fdc: read from unmapped register", "addr", addr)
		return 0
	}
}

// Write services an MMIO write from the host CPU at the given FDC-relative
// address.
func (c *Controller) Write(addr uint16, val byte) {
	switch addr & 0x07 {
	case addrStatusOrCommand:
		c.commandWritten(val)
	case addrParameterOrData:
		c.paramWritten(val)
	case addrData, addrData + 1, addrData + 2, addrData + 3:
		c.statusLower(statusNeedData | statusNMI)
		c.regs[regInternalData] = val
	case addrReset:
		if val == 1 {
			if c.logCommands {
				c.log.Info("fdc: reset")
			}
			c.breakReset()
		} else if val != 0 {
			panic(fmt.Sprintf("fdc: invalid reset value %#x", val))
		}
	default:
		c.log.Info("fdc: write to unmapped register", "addr", addr)
	}
}

func (c *Controller) commandWritten(val byte) {
	if c.getStatus()&statusBusy != 0 {
		c.log.Warn("fdc: command while busy", "new", fmt.Sprintf("%#x", val), "current", c.regs[regInternalCommand])
	}

	c.regs[regInternalCommand] = val
	c.statusRaise(statusBusy)
	c.statusLower(statusCommandFull)
	c.setResult(0)

	c.regs[regInternalParam3] = 1
	c.regs[regInternalParam4] = 1

	numParams := byte(5)
	if c.regs[regInternalCommand]&0x18 != 0 {
		numParams = c.regs[regInternalCommand] & 0x03
	}
	c.regs[regInternalParamCount] = numParams

	if numParams > 0 {
		c.regs[regInternalPointer] = 7
		c.parameterCB = paramAcceptCommand
		return
	}

	c.startCommand()
}

func (c *Controller) paramWritten(val byte) {
	c.regs[regInternalParameter] = val
	c.statusLower(statusResultReady)

	switch c.parameterCB {
	case paramAcceptNone:
	case paramAcceptCommand:
		c.writeRegister(c.regs[regInternalPointer], c.regs[regInternalParameter])
		c.regs[regInternalPointer]--
		c.regs[regInternalParamCount]--
		if c.regs[regInternalParamCount] == 0 {
			c.startCommand()
		}
	case paramAcceptSpecify:
		c.writeRegister(c.regs[regInternalPointer], c.regs[regInternalParameter])
		c.regs[regInternalPointer]++
		c.regs[regInternalParamCount]--
		if c.regs[regInternalParamCount] == 0 {
			c.finishSimpleCommand()
		}
	}
}

func (c *Controller) writeRegister(reg, val byte) {
	reg &= 0x3F
	if reg < numRegisters {
		c.regs[reg] = val
		return
	}
	switch reg & 0x07 {
	case regDriveOut & 0x07:
		c.setDriveOut(val)
	default:
		c.log.Warn("fdc: direct write to MMIO register", "reg", reg)
	}
}

func (c *Controller) readRegister(reg byte) byte {
	reg &= 0x3F
	if reg < numRegisters {
		return c.regs[reg]
	}
	switch reg & 0x07 {
	case regDriveIn & 0x07:
		return c.readDriveIn()
	case regDriveOut & 0x07:
		return c.driveOut
	default:
		c.log.Warn("fdc: direct read from MMIO register", "reg", reg)
		return 0
	}
}

// setDriveOut applies a new drive-out byte: it stops the previously
// selected drive spinning if the head was loaded, selects the drive named
// by the select bits (no drive at all if both or neither are set), and
// starts the newly selected drive spinning if load-head is requested.
func (c *Controller) setDriveOut(driveOut byte) {
	if c.currentDrive != nil && c.driveOut&driveOutLoadHead != 0 {
		c.currentDrive.StopSpinning()
		c.reportActivity(c.driveIndex(c.currentDrive), false, c.currentDrive.GetTrack())
	}
	c.currentDrive = nil

	switch driveOut & 0xC0 {
	case driveOutSelect0:
		c.currentDrive = c.drive0
	case driveOutSelect1:
		c.currentDrive = c.drive1
	}

	if c.currentDrive != nil {
		if driveOut&driveOutLoadHead != 0 {
			c.currentDrive.StartSpinning()
			c.reportActivity(c.driveIndex(c.currentDrive), true, c.currentDrive.GetTrack())
		}
		c.currentDrive.SelectSide(driveOut&driveOutSide != 0)
	}

	c.driveOut = driveOut
}

func (c *Controller) driveOutRaise(bits byte) { c.setDriveOut(c.driveOut | bits) }
func (c *Controller) driveOutLower(bits byte) { c.setDriveOut(c.driveOut &^ bits) }

// readDriveIn samples the currently selected drive's live signal lines.
// Bits 0x81 read high unconditionally, mirroring an observed quirk of real
// hardware.
func (c *Controller) readDriveIn() byte {
	driveIn := byte(0x81)
	if c.currentDrive == nil || !c.currentDrive.IsSpinning() {
		return driveIn
	}
	if c.currentDrive.GetTrack() == 0 {
		driveIn |= 0x02
	}
	if c.driveOut&driveOutSelect0 != 0 {
		driveIn |= 0x04
	}
	if c.driveOut&driveOutSelect1 != 0 {
		driveIn |= 0x40
	}
	if c.currentDrive.IsWriteProtect() {
		driveIn |= 0x08
	}
	if c.currentDrive.IsIndexPulse() {
		driveIn |= 0x10
	}
	return driveIn
}

// doReadDriveStatus refreshes the drive-in copy/latched registers and
// returns the latched value. Bits in the mask 0xBB follow the live drive-in
// lines; the bits outside it (0x04 RDY0, 0x40 RDY1) stick at 0 once read as
// 0, until READ_DRIVE_STATUS re-latches them from the copy.
func (c *Controller) doReadDriveStatus() byte {
	driveIn := c.readDriveIn()
	c.regs[regInternalDriveInCopy] = driveIn
	c.regs[regInternalDriveInLatched] |= 0xBB
	driveIn &= c.regs[regInternalDriveInLatched]
	c.regs[regInternalDriveInLatched] = driveIn
	return driveIn
}

// checkDriveReady aborts the current command with ResultDriveNotReady if
// the selected drive isn't ready (RDY0/RDY1 per select bits), returning
// false in that case.
func (c *Controller) checkDriveReady() bool {
	_ = c.doReadDriveStatus()

	mask := byte(0x04)
	if c.driveOut&driveOutSelect1 != 0 {
		mask = 0x40
	}
	if c.regs[regInternalDriveInLatched]&mask == 0 {
		c.finishCommand(ResultDriveNotReady)
		return false
	}
	return true
}

func (c *Controller) startCommand() {
	_ = c.doReadDriveStatus()

	c.parameterCB = paramAcceptNone

	commandReg := c.regs[regInternalCommand]
	selectBits := commandReg & 0xC0
	if selectBits != c.driveOut&0xC0 {
		selectBits |= c.driveOut & driveOutSide
		c.setDriveOut(selectBits)
	}

	c.regs[regInternalCommand] = commandReg & 0x3C

	if c.logCommands {
		c.log.Info("fdc: command",
			"cmd", fmt.Sprintf("%#x", commandReg&0x3F),
			"sel", fmt.Sprintf("%#x", selectBits),
			"p1", c.regs[regInternalParam1],
			"p2", c.regs[regInternalParam2],
			"p3", c.regs[regInternalParam3],
			"p4", c.regs[regInternalParam4],
			"p5", c.regs[regInternalParam5])
	}

	c.dispatchCommand()
}

func (c *Controller) dispatchCommand() {
	switch c.internalCommand() {
	case cmdUnused9, cmdUnused12:
		panic("fdc: unused command dispatched")
	case cmdReadDriveStatus:
		c.setResult(c.doReadDriveStatus())
		c.regs[regInternalDriveInLatched] = c.regs[regInternalDriveInCopy]
		c.finishSimpleCommand()
	case cmdSpecify:
		c.regs[regInternalPointer] = c.regs[regInternalParam1]
		c.regs[regInternalParamCount] = 3
		c.parameterCB = paramAcceptSpecify
	case cmdWriteSpecialRegister:
		c.writeRegister(c.regs[regInternalParam1], c.regs[regInternalParam2])
		c.lowerBusy()
	case cmdReadSpecialRegister:
		c.setResult(c.readRegister(c.regs[regInternalParam1]))
		c.finishSimpleCommand()
	case cmdReadID:
		if c.regs[regInternalParam2] == 0 {
			c.doSeek()
		} else {
			c.startSyncingForHeader()
		}
	default:
		switch c.internalCommand() {
		case cmdWriteData:
			c.regs[regInternalParamDataMark] = ibmformat.DataMarkDataPattern
		case cmdWriteDeletedData:
			c.regs[regInternalParamDataMark] = ibmformat.DeletedDataMarkDataPattern
		}
		c.doSeek()
	}
}

func (c *Controller) lowerBusy() {
	c.statusLower(statusBusy)
	if c.logCommands {
		c.log.Info("fdc: status", "status", fmt.Sprintf("%#x", c.getExternalStatus()), "result", c.regs[regInternalResult])
	}
}

// spindown deselects both drives, stopping whichever is spinning.
func (c *Controller) spindown() {
	c.driveOutLower(driveOutSelect1 | driveOutSelect0 | driveOutLoadHead)
}

// finishSimpleCommand ends a command without touching the result register,
// scheduling an automatic head unload per R15's unload-count nibble.
func (c *Controller) finishSimpleCommand() {
	c.setState(stateIdle)
	c.lowerBusy()
	c.clearCallbacks()

	headUnloadCount := c.regs[regHeadLoadUnload] >> 4
	switch headUnloadCount {
	case 0:
		c.spindown()
	case 0x0F:
		// Never automatically unload.
	default:
		c.regs[regInternalIndexPulseCnt] = headUnloadCount
		c.indexPulseCB = indexPulseSpindown
	}
}

// finishCommand ends a command with the given result code, ORed into
// whatever result is already present (so a late-discovered error doesn't
// erase an earlier flag such as ResultFlagDeletedData).
func (c *Controller) finishCommand(result byte) {
	if result != ResultOK {
		c.driveOutLower(driveOutDirection | driveOutStep | driveOutWriteEnable)
	}
	result |= c.regs[regInternalResult]
	c.setResult(result)
	c.statusRaise(statusNMI)
	c.finishSimpleCommand()
}

func (c *Controller) clearCallbacks() {
	c.parameterCB = paramAcceptNone
	c.indexPulseCB = indexPulseNone
	c.wheel.StopTimer(c.timer)
	c.timerState = timerNone
}

// commandAbort ends an in-progress write uncleanly (a stray $FF/$FF byte is
// left where the write broke off, mirroring how an aborted write leaves the
// disc surface on real hardware) and lowers any asserted NMI so the
// command-completion NMI that follows isn't lost.
func (c *Controller) commandAbort() {
	if c.currentDrive != nil &&
		(c.state == stateWriteSectorData || c.state == stateFormatWriteID || c.state == stateFormatWriteData) {
		c.currentDrive.WriteByte(0xFF, 0xFF)
	}
	c.cpu.SetIRQLevel(hostcpu.NMI, 0)
}

func (c *Controller) setState(s fdcState) {
	c.state = s
	c.stateCount = 0
	if s == stateSyncingForID || s == stateSyncingForData {
		c.shiftRegister = 0
		c.numShifts = 0
	}
}
