package fdc

import "github.com/beebjit/fdc8271/internal/timing"

func (c *Controller) setTimerMS(state int, waitMS uint32) {
	if c.wheel.TimerIsRunning(c.timer) {
		c.wheel.StopTimer(c.timer)
	}
	c.timerState = state
	c.wheel.StartTimerWithValue(c.timer, uint64(waitMS)*timing.MillisecondTicks)
}

func (c *Controller) onTimerFired() {
	c.regs[regInternalMSCountHi] = 0
	c.regs[regInternalMSCountLo] = 0

	switch c.timerState {
	case timerSeekStep:
		c.doSeekStep()
	case timerPostSeek:
		c.postSeekDispatch()
	}
}

func (c *Controller) startIndexPulseTimeout() {
	c.regs[regInternalIndexPulseCnt] = 3
	c.indexPulseCB = indexPulseTimeout
}

func (c *Controller) commandIsWriting() bool {
	switch c.internalCommand() {
	case cmdWriteData, cmdWriteDeletedData, cmdFormat:
		return true
	}
	return false
}

func (c *Controller) setupSectorSize() {
	size := c.sectorSize()
	msb := byte(size/128 - 1)
	c.regs[regInternalCountLSB] = 0x80
	c.regs[regInternalCountMSB] = msb
	c.regs[regInternalCountMSBCopy] = msb
}

func (c *Controller) sectorSize() uint32 {
	size := uint32(c.regs[regInternalParam3]) >> 5
	return 128 << size
}

// decrementCounter decrements the 16-bit (gap-aligned) byte counter split
// across regInternalCountLSB/MSB, returning true once it has rolled from
// zero past 0xFF in the MSB half (signalling "all bytes transferred").
func (c *Controller) decrementCounter() bool {
	c.regs[regInternalCountLSB]--
	if c.regs[regInternalCountLSB] != 0 {
		return false
	}
	c.regs[regInternalCountMSB]--
	if c.regs[regInternalCountMSB] != 0xFF {
		c.regs[regInternalCountLSB] = 0x80
		return false
	}
	c.regs[regInternalCountMSB] = 0
	return true
}

func (c *Controller) startSyncingForHeader() {
	c.regs[regInternalHeaderPointer] = 0x0C
	c.setState(stateSyncingForID)
}

// doSeek computes the seek target (folding in bad-track remapping and the
// seek-retry-count offset from a prior ID mismatch), then begins stepping
// toward it.
func (c *Controller) doSeek() {
	newTrack := c.regs[regInternalParam1] + c.regs[regInternalSeekRetryCount]

	var trackRegs []byte
	if c.driveOut&driveOutSelect1 != 0 {
		trackRegs = c.regs[regBadTrack1Drive1 : regBadTrack1Drive1+3]
	} else {
		trackRegs = c.regs[regBadTrack1Drive0 : regBadTrack1Drive0+3]
	}

	if newTrack > 0 {
		if trackRegs[0] <= newTrack {
			newTrack++
		}
		if trackRegs[1] <= newTrack {
			newTrack++
		}
	}

	c.regs[regInternalSeekTarget1] = newTrack
	c.regs[regInternalSeekTarget2] = newTrack

	if newTrack >= 43 {
		c.driveOut |= driveOutLowHeadCurrent
	} else {
		c.driveOut &^= driveOutLowHeadCurrent
	}

	currTrack := trackRegs[2]
	if newTrack == 0 {
		currTrack = 255
	}

	if newTrack == currTrack {
		c.doLoadHead(false)
		return
	}

	if newTrack > currTrack {
		c.regs[regInternalSeekCount] = newTrack - currTrack
		c.driveOut |= driveOutDirection
	} else {
		c.regs[regInternalSeekCount] = currTrack - newTrack
		c.driveOut &^= driveOutDirection
	}

	c.driveOut &^= driveOutStep

	trackRegs[2] = c.regs[regInternalSeekTarget2]
	if c.regs[regMode]&modeSingleActuator != 0 {
		c.regs[regTrackDrive0] = trackRegs[2]
		c.regs[regTrackDrive1] = trackRegs[2]
	}

	c.doSeekStep()
}

func (c *Controller) doSeekStep() {
	if c.currentDrive == nil {
		return
	}

	if c.currentDrive.GetTrack() == 0 && c.regs[regInternalSeekTarget2] == 0 {
		c.doLoadHead(true)
		return
	}
	if c.regs[regInternalSeekCount] == 0 {
		c.doLoadHead(true)
		return
	}

	c.regs[regInternalSeekCount]--

	if c.driveOut&driveOutDirection != 0 {
		c.currentDrive.SeekTrack(1)
	} else {
		c.currentDrive.SeekTrack(-1)
	}
	c.reportActivity(c.driveIndex(c.currentDrive), c.driveOut&driveOutLoadHead != 0, c.currentDrive.GetTrack())

	stepRate := c.regs[regHeadStepRate]
	if stepRate == 0 {
		panic("fdc: drive timed seek not handled")
	}

	c.setTimerMS(timerSeekStep, uint32(stepRate)*2)
}

// doLoadHead raises LOAD_HEAD if it isn't already raised (waiting out the
// head-load delay) or, if isSettle and the head is already loaded, waits
// out the settle delay instead; either way it falls through to
// postSeekDispatch once no further wait is needed.
func (c *Controller) doLoadHead(isSettle bool) {
	var postSeekMS uint32

	if c.driveOut&driveOutLoadHead == 0 {
		c.driveOutRaise(driveOutLoadHead)
		postSeekMS = uint32(c.regs[regHeadLoadUnload]&0x0F) * 4
	} else if isSettle {
		postSeekMS = uint32(c.regs[regHeadSettleTime]) * 2
	}

	if postSeekMS > 0 {
		c.setTimerMS(timerPostSeek, postSeekMS)
	} else {
		c.postSeekDispatch()
	}
}

func (c *Controller) postSeekDispatch() {
	c.timerState = timerNone

	if !c.checkDriveReady() {
		return
	}

	switch c.internalCommand() {
	case cmdReadID:
		c.setState(stateWaitNoIndex)
	case cmdFormat:
		c.setupSectorSize()
		c.setState(stateWaitNoIndex)
	case cmdSeek:
		c.finishCommand(ResultOK)
	default:
		c.setupSectorSize()
		c.startIndexPulseTimeout()
		c.startSyncingForHeader()
	}

	if c.commandIsWriting() && c.regs[regInternalDriveInLatched]&0x08 != 0 {
		c.finishCommand(ResultWriteProtected)
	}
}
