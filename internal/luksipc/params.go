// Package luksipc implements the in-place LUKSification engine: converting
// a plaintext block device to a LUKS-encrypted one by copying data through
// two rotating chunk buffers, with a resume record written and fsynced on
// graceful shutdown so the process can be interrupted and continued.
package luksipc

import "time"

// ExitCode enumerates the process exit codes, preserved verbatim (numeric
// value and meaning) from upstream luksipc's exit.h so that scripts driving
// this tool over multiple releases keep working.
type ExitCode uint8

const (
	ecSuccess ExitCode = iota
	ecUnspecifiedError
	ecCopyAbortedResumeFileWritten
	ecCannotAllocateChunkMemory
	ecCannotGenerateKeyFile
	ecCannotInitializeDeviceAlias
	ecCannotOpenReadDevice
	ecCannotOpenResumeFile
	ecCopyAbortedFailedToWriteResumeFile
	ecDeviceSizesImplausible
	ecFailedToBackupHeader
	ecFailedToCloseLuksDevice
	ecFailedToOpenUnlockedCryptoDevice
	ecFailedToPerformLuksFormat
	ecFailedToPerformLuksOpen
	ecFailedToReadResumeFile
	ecFailedToRemoveDeviceMapperAlias
	ecLuksipcWriteDeviceHandleUnavailable
	ecPreconditionsNotSatisfied
	ecUnableToGetRawDiskSize
	ecUnableToReadFirstChunk
	ecUnableToReadFromStdin
	ecUnsupportedSmallDiskCornerCase
	ecUserAbortedProcess
	ecCannotInitSignalHandlers
	ecCmdlineParsingError
	ecCmdlineArgumentError
	ecCannotGenerateWriteHandle
	ecPrngInitializationFailed
)

// EExitCode is the enum accessor singleton, following the same manual-enum
// idiom as ambient.ELogLevel.
var EExitCode = ExitCode(ecSuccess)

func (ExitCode) Success() ExitCode                             { return ecSuccess }
func (ExitCode) UnspecifiedError() ExitCode                     { return ecUnspecifiedError }
func (ExitCode) CopyAbortedResumeFileWritten() ExitCode         { return ecCopyAbortedResumeFileWritten }
func (ExitCode) CannotAllocateChunkMemory() ExitCode            { return ecCannotAllocateChunkMemory }
func (ExitCode) CannotGenerateKeyFile() ExitCode                { return ecCannotGenerateKeyFile }
func (ExitCode) CannotInitializeDeviceAlias() ExitCode          { return ecCannotInitializeDeviceAlias }
func (ExitCode) CannotOpenReadDevice() ExitCode                 { return ecCannotOpenReadDevice }
func (ExitCode) CannotOpenResumeFile() ExitCode                 { return ecCannotOpenResumeFile }
func (ExitCode) CopyAbortedFailedToWriteResumeFile() ExitCode {
	return ecCopyAbortedFailedToWriteResumeFile
}
func (ExitCode) DeviceSizesImplausible() ExitCode       { return ecDeviceSizesImplausible }
func (ExitCode) FailedToBackupHeader() ExitCode         { return ecFailedToBackupHeader }
func (ExitCode) FailedToCloseLuksDevice() ExitCode      { return ecFailedToCloseLuksDevice }
func (ExitCode) FailedToOpenUnlockedCryptoDevice() ExitCode {
	return ecFailedToOpenUnlockedCryptoDevice
}
func (ExitCode) FailedToPerformLuksFormat() ExitCode { return ecFailedToPerformLuksFormat }
func (ExitCode) FailedToPerformLuksOpen() ExitCode   { return ecFailedToPerformLuksOpen }
func (ExitCode) FailedToReadResumeFile() ExitCode    { return ecFailedToReadResumeFile }
func (ExitCode) FailedToRemoveDeviceMapperAlias() ExitCode {
	return ecFailedToRemoveDeviceMapperAlias
}
func (ExitCode) LuksipcWriteDeviceHandleUnavailable() ExitCode {
	return ecLuksipcWriteDeviceHandleUnavailable
}
func (ExitCode) PreconditionsNotSatisfied() ExitCode      { return ecPreconditionsNotSatisfied }
func (ExitCode) UnableToGetRawDiskSize() ExitCode         { return ecUnableToGetRawDiskSize }
func (ExitCode) UnableToReadFirstChunk() ExitCode         { return ecUnableToReadFirstChunk }
func (ExitCode) UnableToReadFromStdin() ExitCode          { return ecUnableToReadFromStdin }
func (ExitCode) UnsupportedSmallDiskCornerCase() ExitCode { return ecUnsupportedSmallDiskCornerCase }
func (ExitCode) UserAbortedProcess() ExitCode             { return ecUserAbortedProcess }
func (ExitCode) CannotInitSignalHandlers() ExitCode       { return ecCannotInitSignalHandlers }
func (ExitCode) CmdlineParsingError() ExitCode            { return ecCmdlineParsingError }
func (ExitCode) CmdlineArgumentError() ExitCode           { return ecCmdlineArgumentError }
func (ExitCode) CannotGenerateWriteHandle() ExitCode       { return ecCannotGenerateWriteHandle }
func (ExitCode) PrngInitializationFailed() ExitCode        { return ecPrngInitializationFailed }

// Int returns the exit code's numeric value, preserved from upstream's
// exit.h enumeration for scripts that branch on the process exit status.
func (e ExitCode) Int() int { return int(e) }

func (e ExitCode) String() string {
	switch e {
	case ecSuccess:
		return "success"
	case ecUnspecifiedError:
		return "unspecified error"
	case ecCopyAbortedResumeFileWritten:
		return "copy aborted gracefully, resume file successfully written"
	case ecCannotAllocateChunkMemory:
		return "cannot allocate memory for copy chunks"
	case ecCannotGenerateKeyFile:
		return "cannot generate key file"
	case ecCannotInitializeDeviceAlias:
		return "cannot initialize device mapper alias"
	case ecCannotOpenReadDevice:
		return "cannot open reading block device"
	case ecCannotOpenResumeFile:
		return "cannot open resume file"
	case ecCopyAbortedFailedToWriteResumeFile:
		return "copy aborted, failed to write resume file"
	case ecDeviceSizesImplausible:
		return "device sizes are implausible"
	case ecFailedToBackupHeader:
		return "failed to backup raw device header"
	case ecFailedToCloseLuksDevice:
		return "failed to close LUKS device"
	case ecFailedToOpenUnlockedCryptoDevice:
		return "failed to open unlocked crypto device"
	case ecFailedToPerformLuksFormat:
		return "failed to perform luksFormat"
	case ecFailedToPerformLuksOpen:
		return "failed to perform luksOpen"
	case ecFailedToReadResumeFile:
		return "failed to read resume file"
	case ecFailedToRemoveDeviceMapperAlias:
		return "failed to remove device mapper alias"
	case ecLuksipcWriteDeviceHandleUnavailable:
		return "device mapper handle for luksipc write device is unavailable"
	case ecPreconditionsNotSatisfied:
		return "process preconditions are unsatisfied"
	case ecUnableToGetRawDiskSize:
		return "unable to determine raw disk size"
	case ecUnableToReadFirstChunk:
		return "unable to read first chunk"
	case ecUnableToReadFromStdin:
		return "unable to read from standard input"
	case ecUnsupportedSmallDiskCornerCase:
		return "unsupported small disk corner case"
	case ecUserAbortedProcess:
		return "user aborted process"
	case ecCannotInitSignalHandlers:
		return "unable to install signal handlers"
	case ecCmdlineParsingError:
		return "error parsing the parameters given on command line"
	case ecCmdlineArgumentError:
		return "error with a parameter given on the command line"
	case ecCannotGenerateWriteHandle:
		return "error generating device mapper write handle"
	case ecPrngInitializationFailed:
		return "initialization of PRNG failed"
	default:
		return "unknown exit code"
	}
}

// MinChunkSize is the smallest chunk size the conversion engine accepts.
// Below this the LUKS header (which must fit inside a single chunk so it
// can be held in memory while luksFormat overwrites it on disk) would not
// have room to breathe.
const MinChunkSize = 10 * 1024 * 1024

// sizePlausibilityThresholdBytes bounds how far the luksOpen'd write
// device's size may differ, in either direction, from the read device's
// before the sizes are rejected as implausible (LUKS1/LUKS2 header overhead
// plus slack, never legitimately more than this).
const sizePlausibilityThresholdBytes = 256 * 1024 * 1024

// DevFaultInjection holds the development-only fault-injection knobs wired
// to the CLI's --debug-* flags. All fields are zero value in production use.
type DevFaultInjection struct {
	// FailAfterBytes aborts the copy loop with a simulated I/O error once
	// this many bytes have been copied. Zero disables it.
	FailAfterBytes uint64
	// FailReadAt simulates a read error at this output offset. Zero disables it.
	FailReadAt uint64
	// SlowDownPerChunk sleeps this long after every chunk, to make races in
	// signal handling and resume-file fsync discipline reproducible under test.
	SlowDownPerChunk time.Duration
}

// LuksFormatParams are the extra arguments for the cryptsetup luksFormat
// invocation; each entry is split on commas into separate arguments, e.g.
// "--cipher,aes-xts-plain64,--key-size,512".
type LuksFormatParams []string

// Parameters collects everything a conversion run needs, already validated
// and defaulted by the CLI layer's cook() step.
type Parameters struct {
	ReadDevice       string
	RawDevice        string
	KeyFile          string
	BlockSize        uint64
	Resuming         bool
	ResumeFilename   string
	BackupFile       string
	SafetyChecks     bool
	BatchMode        bool
	ReLuksification  bool
	KeepResumeFile   bool
	LuksFormatParams LuksFormatParams
	LogLevel         uint8
	LogFile          string

	Fault DevFaultInjection
}
