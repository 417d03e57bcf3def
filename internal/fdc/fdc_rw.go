package fdc

import (
	"github.com/beebjit/fdc8271/internal/discio"
	"github.com/beebjit/fdc8271/internal/ibmformat"
)

// checkDataLossOK aborts (with ResultLateDMA) and returns false if the
// command is a scan (unsupported — scan requires DMA wiring this emulation
// doesn't provide) or if the previous data byte was never picked up by the
// host before this one arrived.
func (c *Controller) checkDataLossOK() bool {
	ok := true
	switch c.internalCommand() {
	case cmdScanData, cmdScanDataAndDeleted:
		ok = false
	}
	if c.getStatus()&statusNeedData != 0 {
		ok = false
	}
	if ok {
		return true
	}

	c.commandAbort()
	c.finishCommand(ResultLateDMA)
	return false
}

func (c *Controller) provideDataByte(b byte) bool {
	if !c.checkDataLossOK() {
		return false
	}
	c.regs[regInternalData] = b
	c.statusRaise(statusNMI | statusNeedData)
	return true
}

func (c *Controller) consumeDataByte() bool {
	data := c.regs[regInternalData]
	if !c.checkDataLossOK() {
		return false
	}
	c.currentDrive.WriteByte(data, 0xFF)
	return true
}

func (c *Controller) checkCRC(errResult byte) bool {
	if c.crc == c.onDiscCRC {
		return true
	}
	c.finishCommand(errResult)
	return false
}

// checkCompletion ends the transfer for the current sector and either
// finishes the command (all sectors done) or re-dispatches it for the next
// sector, exactly mirroring the 8271 ROM's counter-underflow quirks: a
// sector count of 0 wraps to 32 via 5-bit underflow, and when another
// sector remains the sector-number parameter advances by the low six bits
// of the "fill" parameter.
func (c *Controller) checkCompletion() {
	if !c.checkDriveReady() {
		return
	}

	c.driveOutLower(driveOutWriteEnable)
	c.clearCallbacks()

	c.regs[regInternalParam3]--
	if c.regs[regInternalParam3]&0x1F == 0 {
		c.finishCommand(ResultOK)
		return
	}
	c.regs[regInternalParam2] += c.regs[regInternalParam4] & 0x3F
	c.dispatchCommand()
}

// byteCallback is invoked once per byte time-slice by the currently
// selected drive. It tracks the index pulse transition, then either
// converts the byte into a bit stream for sync/read states (to tolerate
// disc images whose bytes aren't perfectly phase-aligned) or drives the
// write/format byte-level state machine directly.
func (c *Controller) byteCallback(drive *discio.Drive, data, clocks byte) {
	if drive != c.currentDrive {
		return
	}

	c.checkIndexPulse()

	switch c.state {
	case stateIdle:
		if c.driveOut&driveOutWriteEnable != 0 && !c.currentDrive.IsWriteProtect() {
			c.currentDrive.WriteByte(0x00, 0x00)
		}
	case stateWaitNoIndex:
		if !c.stateIsIndexPulse {
			c.setState(stateWaitIndex)
		}
	case stateWaitIndex:
		if !c.stateIsIndexPulse {
			break
		}
		if c.internalCommand() == cmdReadID {
			c.startIndexPulseTimeout()
			c.startSyncingForHeader()
		} else {
			if c.regs[regInternalParam4] != 0 {
				panic("fdc: format GAP5 not supported")
			}
			c.setState(stateFormatGap1)
			c.byteCallbackWriting()
		}
	case stateSyncingForIDWait, stateSyncingForID, stateCheckIDMarker,
		stateInID, stateInIDCRC, stateSkipGap2,
		stateSyncingForData, stateCheckDataMarker,
		stateInData, stateInDeletedData, stateInDataCRC:
		for i := 0; i < 8; i++ {
			c.shiftDataBit((clocks >> 7) & 1)
			c.shiftDataBit((data >> 7) & 1)
			clocks <<= 1
			data <<= 1
		}
	case stateWriteGap2, stateWriteSectorData,
		stateFormatGap1, stateFormatWriteID, stateFormatWriteData,
		stateFormatGap3, stateFormatGap4:
		c.byteCallbackWriting()
	}
}

func (c *Controller) checkIndexPulse() {
	wasIndexPulse := c.stateIsIndexPulse
	c.stateIsIndexPulse = c.currentDrive != nil && c.currentDrive.IsIndexPulse()

	if !c.stateIsIndexPulse || wasIndexPulse {
		return
	}

	switch c.indexPulseCB {
	case indexPulseNone:
	case indexPulseTimeout:
		c.regs[regInternalIndexPulseCnt]--
		if c.regs[regInternalIndexPulseCnt] == 0 {
			c.finishCommand(ResultSectorNotFound)
		}
	case indexPulseSpindown:
		c.regs[regInternalIndexPulseCnt]--
		if c.regs[regInternalIndexPulseCnt] == 0 {
			if c.logCommands {
				c.log.Info("fdc: automatic head unload")
			}
			c.spindown()
			c.indexPulseCB = indexPulseNone
		}
	}
}

// shiftDataBit accumulates FM bit pairs into a 16-bit clock/data shift
// register one bit at a time, so that sync detection and the resulting
// mark/byte boundary work even when the drive's byte callback is not
// perfectly phase-aligned to the FM bit cells.
func (c *Controller) shiftDataBit(bit byte) {
	switch c.state {
	case stateSyncingForIDWait:
		c.stateCount++
		if c.stateCount == 4*8*2 {
			c.startSyncingForHeader()
		}

	case stateSyncingForID, stateSyncingForData:
		stateCount := c.stateCount
		switch {
		case bit == boolBit(stateCount&1 == 0):
			c.stateCount++
		case c.stateCount >= 32 && stateCount&1 != 0:
			if c.state == stateSyncingForID {
				c.setState(stateCheckIDMarker)
			} else {
				c.setState(stateCheckDataMarker)
			}
			c.shiftRegister = 3
			c.numShifts = 2
		default:
			c.stateCount = 0
		}

	case stateCheckIDMarker, stateInID, stateInIDCRC, stateCheckDataMarker,
		stateInData, stateInDeletedData, stateInDataCRC, stateSkipGap2:
		c.shiftRegister = (c.shiftRegister << 1) | uint32(bit)
		c.numShifts++
		if c.numShifts != 16 {
			return
		}

		clocksByte, dataByte := decodeShiftRegister(c.shiftRegister)
		c.byteCallbackReading(dataByte, clocksByte)

		c.shiftRegister = 0
		c.numShifts = 0

	case stateIdle, stateWriteGap2:
	}
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// decodeShiftRegister splits a 16-bit interleaved clock/data shift register
// (clock bits at even bit positions from the MSB, data bits at odd) into
// separate clock and data bytes.
func decodeShiftRegister(sr uint32) (clocksByte, dataByte byte) {
	bits := []struct {
		mask uint32
		out  *byte
		bit  byte
	}{
		{0x8000, &clocksByte, 0x80}, {0x2000, &clocksByte, 0x40},
		{0x0800, &clocksByte, 0x20}, {0x0200, &clocksByte, 0x10},
		{0x0080, &clocksByte, 0x08}, {0x0020, &clocksByte, 0x04},
		{0x0008, &clocksByte, 0x02}, {0x0002, &clocksByte, 0x01},
		{0x4000, &dataByte, 0x80}, {0x1000, &dataByte, 0x40},
		{0x0400, &dataByte, 0x20}, {0x0100, &dataByte, 0x10},
		{0x0040, &dataByte, 0x08}, {0x0010, &dataByte, 0x04},
		{0x0004, &dataByte, 0x02}, {0x0001, &dataByte, 0x01},
	}
	for _, b := range bits {
		if sr&b.mask != 0 {
			*b.out |= b.bit
		}
	}
	return clocksByte, dataByte
}

func (c *Controller) byteCallbackReading(dataByte, clocksByte byte) {
	command := c.internalCommand()

	switch c.state {
	case stateSkipGap2:
		c.regs[regInternalGap2Skip]--
		if c.regs[regInternalGap2Skip] != 0 {
			return
		}
		if c.commandIsWriting() {
			c.setState(stateWriteGap2)
		} else {
			c.setState(stateSyncingForData)
		}

	case stateCheckIDMarker:
		if clocksByte == ibmformat.MarkClockPattern && dataByte == ibmformat.IDMarkDataPattern {
			c.crc = ibmformat.CRCInit()
			c.crc = ibmformat.CRCAddByte(c.crc, ibmformat.IDMarkDataPattern)
			c.setState(stateInID)
		} else {
			c.startSyncingForHeader()
		}

	case stateInID:
		c.crc = ibmformat.CRCAddByte(c.crc, dataByte)
		if command == cmdReadID {
			if !c.provideDataByte(dataByte) {
				return
			}
		}
		c.writeRegister(c.regs[regInternalHeaderPointer], dataByte)
		c.regs[regInternalHeaderPointer]--
		if c.regs[regInternalHeaderPointer]&0x07 == 0 {
			c.onDiscCRC = 0
			c.setState(stateInIDCRC)
		}

	case stateInIDCRC:
		c.onDiscCRC = (c.onDiscCRC << 8) | uint16(dataByte)
		c.stateCount++
		if c.stateCount != 2 {
			return
		}
		if !c.checkCRC(ResultIDCRCError) {
			return
		}
		switch {
		case c.regs[regInternalCommand] == 0x18:
			c.checkCompletion()
		case c.regs[regInternalIDTrack] != c.regs[regInternalParam1]:
			c.regs[regInternalSeekRetryCount]++
			if c.regs[regInternalSeekRetryCount] == 3 {
				c.finishCommand(ResultSectorNotFound)
			} else {
				c.doSeek()
			}
		case c.regs[regInternalIDSector] == c.regs[regInternalParam2]:
			c.regs[regInternalGap2Skip] = 11
			c.setState(stateSkipGap2)
		default:
			c.setState(stateSyncingForIDWait)
		}

	case stateCheckDataMarker:
		if clocksByte == ibmformat.MarkClockPattern &&
			(dataByte == ibmformat.DataMarkDataPattern || dataByte == ibmformat.DeletedDataMarkDataPattern) {
			newState := stateInData
			if dataByte == ibmformat.DeletedDataMarkDataPattern {
				c.setResult(ResultFlagDeletedData)
				newState = stateInDeletedData
			}
			c.crc = ibmformat.CRCInit()
			c.crc = ibmformat.CRCAddByte(c.crc, dataByte)
			c.setState(newState)
		} else {
			c.finishCommand(ResultClockError)
		}

	case stateInData:
		isDone := c.decrementCounter()
		c.crc = ibmformat.CRCAddByte(c.crc, dataByte)
		if command != cmdVerify {
			if !c.provideDataByte(dataByte) {
				return
			}
		}
		if isDone {
			c.onDiscCRC = 0
			c.setState(stateInDataCRC)
		}

	case stateInDeletedData:
		isDone := c.decrementCounter()
		c.crc = ibmformat.CRCAddByte(c.crc, dataByte)
		if command == cmdReadDataAndDeleted {
			if !c.provideDataByte(dataByte) {
				return
			}
		}
		if isDone {
			c.onDiscCRC = 0
			c.setState(stateInDataCRC)
		}

	case stateInDataCRC:
		c.onDiscCRC = (c.onDiscCRC << 8) | uint16(dataByte)
		c.stateCount++
		if c.stateCount != 2 {
			return
		}
		if !c.checkCRC(ResultDataCRCError) {
			return
		}
		c.checkCompletion()
	}
}

func (c *Controller) byteCallbackWriting() {
	drive := c.currentDrive

	switch c.state {
	case stateWriteGap2:
		drive.WriteByte(0x00, 0xFF)
		c.stateCount++
		if c.stateCount == 6 {
			c.setState(stateWriteSectorData)
		}

	case stateWriteSectorData:
		switch {
		case c.stateCount == 0:
			mark := c.regs[regInternalParamDataMark]
			drive.WriteByte(mark, ibmformat.MarkClockPattern)
			c.crc = ibmformat.CRCInit()
			c.crc = ibmformat.CRCAddByte(c.crc, mark)
		case c.stateCount < c.sectorSize()+1:
			data := c.regs[regInternalData]
			if !c.consumeDataByte() {
				return
			}
			c.crc = ibmformat.CRCAddByte(c.crc, data)
		case c.stateCount == c.sectorSize()+1:
			drive.WriteByte(byte(c.crc>>8), 0xFF)
		case c.stateCount == c.sectorSize()+2:
			drive.WriteByte(byte(c.crc), 0xFF)
		}
		c.stateCount++
		if c.stateCount == c.sectorSize()+3 {
			c.checkCompletion()
		} else if c.stateCount < c.sectorSize()+1 {
			c.statusRaise(statusNMI | statusNeedData)
		}

	case stateFormatGap1:
		if c.stateCount < uint32(c.regs[regInternalParam5]) {
			drive.WriteByte(0xFF, 0xFF)
		} else {
			drive.WriteByte(0x00, 0xFF)
		}
		c.stateCount++
		if c.stateCount == uint32(c.regs[regInternalParam5])+6 {
			c.setState(stateFormatWriteID)
		}

	case stateFormatWriteID:
		switch {
		case c.stateCount == 0:
			drive.WriteByte(ibmformat.IDMarkDataPattern, ibmformat.MarkClockPattern)
			c.crc = ibmformat.CRCInit()
			c.crc = ibmformat.CRCAddByte(c.crc, ibmformat.IDMarkDataPattern)
		case c.stateCount < 5:
			data := c.regs[regInternalData]
			if !c.consumeDataByte() {
				return
			}
			c.crc = ibmformat.CRCAddByte(c.crc, data)
		case c.stateCount == 5:
			drive.WriteByte(byte(c.crc>>8), 0xFF)
		case c.stateCount == 6:
			drive.WriteByte(byte(c.crc), 0xFF)
		case c.stateCount < 18:
			drive.WriteByte(0xFF, 0xFF)
		default:
			drive.WriteByte(0x00, 0xFF)
		}

		c.stateCount++
		if c.stateCount < 5 {
			c.statusRaise(statusNMI | statusNeedData)
		} else if c.stateCount == 7+11+6 {
			c.setState(stateFormatWriteData)
		}

	case stateFormatWriteData:
		switch {
		case c.stateCount == 0:
			drive.WriteByte(ibmformat.DataMarkDataPattern, ibmformat.MarkClockPattern)
			c.crc = ibmformat.CRCInit()
			c.crc = ibmformat.CRCAddByte(c.crc, ibmformat.DataMarkDataPattern)
		case c.stateCount < c.sectorSize()+1:
			drive.WriteByte(0xE5, 0xFF)
			c.crc = ibmformat.CRCAddByte(c.crc, 0xE5)
		case c.stateCount == c.sectorSize()+1:
			drive.WriteByte(byte(c.crc>>8), 0xFF)
		default:
			drive.WriteByte(byte(c.crc), 0xFF)
		}

		c.stateCount++
		if c.stateCount == c.sectorSize()+3 {
			c.regs[regInternalParam3]--
			if c.regs[regInternalParam3]&0x1F == 0 {
				c.setState(stateFormatGap4)
			} else {
				c.setState(stateFormatGap3)
			}
		}

	case stateFormatGap3:
		if c.stateCount < uint32(c.regs[regInternalParam2]) {
			drive.WriteByte(0xFF, 0xFF)
		} else {
			drive.WriteByte(0x00, 0xFF)
		}
		c.stateCount++
		if c.stateCount == uint32(c.regs[regInternalParam2])+6 {
			c.setState(stateFormatWriteID)
		}

	case stateFormatGap4:
		if c.stateIsIndexPulse {
			c.finishCommand(ResultOK)
		} else {
			drive.WriteByte(0xFF, 0xFF)
		}
	}
}
