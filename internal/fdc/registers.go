package fdc

// Register file layout. The 8271 exposes 32 addressable registers, several
// of which are deliberately reused for two different purposes depending on
// command phase — that aliasing is preserved here exactly as in the
// silicon, not cleaned up, since client code (and this package's own
// dispatch logic) depends on the overlap.
const (
	regInternalPointer        = 0x00
	regInternalCountMSBCopy   = 0x00 // aliases regInternalPointer
	regInternalParamCount     = 0x01
	regInternalSeekRetryCount = 0x01 // aliases regInternalParamCount
	regInternalParamDataMark  = 0x02
	regInternalParam5         = 0x03
	regInternalParam4         = 0x04
	regInternalParam3         = 0x05
	regCurrentSector          = 0x06
	regInternalParam2         = 0x06 // aliases regCurrentSector
	regInternalParam1         = 0x07
	regInternalHeaderPointer  = 0x08
	regInternalMSCountHi      = 0x08 // aliases regInternalHeaderPointer
	regInternalMSCountLo      = 0x09
	regInternalSeekCount      = 0x0A
	regInternalIDSector       = 0x0A // aliases regInternalSeekCount
	regInternalSeekTarget1    = 0x0B
	regInternalSeekTarget2    = 0x0C
	regInternalIDTrack        = 0x0C // aliases regInternalSeekTarget2
	regHeadStepRate           = 0x0D
	regHeadSettleTime         = 0x0E
	regHeadLoadUnload         = 0x0F
	regBadTrack1Drive0        = 0x10
	regBadTrack2Drive0        = 0x11
	regTrackDrive0            = 0x12
	regInternalCountLSB       = 0x13
	regInternalCountMSB       = 0x14
	regInternalDriveInCopy    = 0x15
	regInternalGap2Skip       = 0x15 // aliases regInternalDriveInCopy
	regInternalResult         = 0x16
	regMode                   = 0x17
	regInternalStatus         = 0x17 // aliases regMode
	regBadTrack1Drive1        = 0x18
	regBadTrack2Drive1        = 0x19
	regTrackDrive1            = 0x1A
	regInternalDriveInLatched = 0x1B
	regInternalIndexPulseCnt  = 0x1C
	regInternalData           = 0x1D
	regInternalParameter      = 0x1E
	regInternalCommand        = 0x1F
	regDriveIn                = 0x22
	regDriveOut               = 0x23

	numRegisters = 32
)

// MMIO addresses, as seen by the host CPU's bus.
const (
	addrStatusOrCommand = 0 // read: status, write: command
	addrParameterOrData = 1 // read: result, write: parameter
	addrReset           = 2 // write only
	addrData            = 4 // read/write
)

// Status register bits.
const (
	statusBusy        = 0x80
	statusCommandFull = 0x40
	statusParamFull   = 0x20
	statusResultReady = 0x10
	statusNMI         = 0x08
	statusNeedData    = 0x04
)

// Result codes returned in the result register.
const (
	ResultOK                = 0x00
	ResultClockError        = 0x08
	ResultLateDMA           = 0x0A
	ResultIDCRCError        = 0x0C
	ResultDataCRCError      = 0x0E
	ResultDriveNotReady     = 0x10
	ResultWriteProtected    = 0x12
	ResultSectorNotFound    = 0x18
	ResultFlagDeletedData   = 0x20
)

// Command slots: the command register's bits 2-5 (command & 0x3C >> 2)
// select one of 16 dispatch slots.
const (
	cmdScanData              = 0
	cmdScanDataAndDeleted    = 1
	cmdWriteData             = 2
	cmdWriteDeletedData      = 3
	cmdReadData              = 4
	cmdReadDataAndDeleted    = 5
	cmdReadID                = 6
	cmdVerify                = 7
	cmdFormat                = 8
	cmdUnused9               = 9
	cmdSeek                  = 10
	cmdReadDriveStatus       = 11
	cmdUnused12              = 12
	cmdSpecify               = 13
	cmdWriteSpecialRegister  = 14
	cmdReadSpecialRegister   = 15
)

// drive_out bits.
const (
	driveOutSelect1        = 0x80
	driveOutSelect0        = 0x40
	driveOutSide           = 0x20
	driveOutLowHeadCurrent = 0x10
	driveOutLoadHead       = 0x08
	driveOutDirection      = 0x04
	driveOutStep           = 0x02
	driveOutWriteEnable    = 0x01
)

// mode register bits (aliases regInternalStatus).
const (
	modeSingleActuator = 0x02
	modeDMA            = 0x01
)

// Internal sequencing states, driven by the byte/bit shift-register
// callback from the currently selected drive.
type fdcState int

const (
	stateNull fdcState = iota
	stateIdle
	stateWaitNoIndex
	stateWaitIndex
	stateSyncingForIDWait
	stateSyncingForID
	stateCheckIDMarker
	stateInID
	stateInIDCRC
	stateSyncingForData
	stateCheckDataMarker
	stateInData
	stateInDeletedData
	stateInDataCRC
	stateSkipGap2
	stateWriteGap2
	stateWriteSectorData
	stateFormatGap1
	stateFormatWriteID
	stateFormatWriteData
	stateFormatGap3
	stateFormatGap4
)

type parameterCallback int

const (
	paramAcceptNone parameterCallback = iota + 1
	paramAcceptCommand
	paramAcceptSpecify
)

type indexPulseCallback int

const (
	indexPulseNone indexPulseCallback = iota + 1
	indexPulseTimeout
	indexPulseSpindown
)
