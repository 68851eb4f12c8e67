package luksipc

import (
	"os"

	"github.com/google/uuid"
	"github.com/johndoe31415/luksipc/internal/ambient"
	"github.com/pkg/errors"
)

// Result is what the controller returns to the CLI layer: the exit code
// to terminate with plus an optional human-readable cause.
type Result struct {
	Code ExitCode
	Err  error
}

// Controller runs one full conversion (or resume) from parameters to
// termination. It is a linear state machine; the only concurrency is the
// signal handler flipping the quit flag the copy engine polls.
type Controller struct {
	Params *Parameters
	Runner Runner
	Logger ambient.ILogger
	UI     *ambient.UIHooks

	// RunID identifies one invocation; Run logs it once, at the start.
	// Unlike a job ID it is never persisted, since nothing here resumes
	// "by ID" — the resume file itself is the handle.
	RunID uuid.UUID
}

func NewController(params *Parameters, runner Runner, logger ambient.ILogger, ui *ambient.UIHooks) *Controller {
	return &Controller{Params: params, Runner: runner, Logger: logger, UI: ui, RunID: uuid.New()}
}

// Run executes the full conversion state machine: preconditions,
// keyfile/handle/alias setup, resume-record bootstrap or first-time
// header backup, the copy engine itself, and teardown.
func (c *Controller) Run() Result {
	p := c.Params

	c.Logger.Log(ambient.ELogLevel.Info(), "run %s: converting %s", c.RunID, p.RawDevice)

	items, ok := RunPreconditionChecks(c.Runner, p, logPrecheckResults(c.Logger))
	for _, item := range items {
		if !item.OK && !item.Fatal {
			c.Logger.Log(ambient.ELogLevel.Warning(), "precondition demoted to warning: %s", item.Description)
		}
	}
	if !ok {
		return Result{Code: EExitCode.PreconditionsNotSatisfied(), Err: errors.New("one or more preconditions failed")}
	}

	if c.UI != nil && c.UI.Confirm != nil {
		if !c.UI.Confirm(confirmationMessage(p)) {
			return Result{Code: EExitCode.UserAbortedProcess(), Err: errors.New("user declined to continue")}
		}
	}

	if !p.Resuming {
		if !fileExists(p.KeyFile) {
			if err := generateKeyFile(p.KeyFile); err != nil {
				return Result{Code: EExitCode.CannotGenerateKeyFile(), Err: err}
			}
		}
	}

	quit := InstallSignalHandlers()
	defer quit.Stop()

	writeHandle := "luksipc_" + RandomHexTag(8)

	rawAlias, err := DmCreateDynamicAlias(c.Runner, p.RawDevice, "raw")
	if err != nil {
		return Result{Code: EExitCode.CannotInitializeDeviceAlias(), Err: err}
	}
	defer func() {
		if !DmRemove(c.Runner, aliasHandle(rawAlias)) {
			c.Logger.Log(ambient.ELogLevel.Warning(), "failed to tear down raw device alias %s", rawAlias)
		}
	}()

	buffers := [2]*Chunk{}
	for i := range buffers {
		buf, err := AllocChunk(int(p.BlockSize))
		if err != nil {
			return Result{Code: EExitCode.CannotAllocateChunkMemory(), Err: err}
		}
		buffers[i] = buf
	}

	resumeFd, err := openResumeFile(p)
	if err != nil {
		return Result{Code: EExitCode.CannotOpenResumeFile(), Err: err}
	}
	defer resumeFd.Close()

	readFd, err := os.OpenFile(p.ReadDevice, os.O_RDWR, 0)
	if err != nil {
		return Result{Code: EExitCode.CannotOpenReadDevice(), Err: errors.Wrapf(err, "opening read device %s", p.ReadDevice)}
	}
	defer readFd.Close()

	readDevSize, err := DiskSizeOfFd(readFd)
	if err != nil {
		return Result{Code: EExitCode.UnableToGetRawDiskSize(), Err: err}
	}
	c.Logger.Log(ambient.ELogLevel.Info(), "size of reading device %s is %s", p.ReadDevice, ambient.ByteSizeToString(readDevSize))

	if !p.Resuming {
		if err := BackupHeader(rawAlias, p.BackupFile, readDevSize); err != nil {
			return Result{Code: EExitCode.FailedToBackupHeader(), Err: err}
		}
	}

	if readDevSize < p.BlockSize {
		return Result{Code: EExitCode.UnsupportedSmallDiskCornerCase(),
			Err: errors.Errorf("read device size %d is smaller than chunk size %d", readDevSize, p.BlockSize)}
	}

	state := &CopyEngineState{
		ReadFd:      readFd,
		ReadDevSize: readDevSize,
		Buffers:     buffers,
		ActiveIndex: 0,
	}

	if !p.Resuming {
		if _, err := buffers[0].ReadAt(readFd, 0, buffers[0].Capacity()); err != nil {
			return Result{Code: EExitCode.UnableToReadFirstChunk(), Err: err}
		}

		if !IsMapperNameAvailable(c.Runner, writeHandle) {
			return Result{Code: EExitCode.LuksipcWriteDeviceHandleUnavailable(),
				Err: errors.Errorf("mapper name %s is not available", writeHandle)}
		}

		c.Logger.Log(ambient.ELogLevel.Info(), "performing luksFormat of %s", rawAlias)
		if !LuksFormat(c.Runner, rawAlias, p.KeyFile, p.LuksFormatParams) {
			return Result{Code: EExitCode.FailedToPerformLuksFormat(), Err: errors.New("cryptsetup luksFormat failed")}
		}
	}

	c.Logger.Log(ambient.ELogLevel.Info(), "performing luksOpen of %s (mapper name %s)", rawAlias, writeHandle)
	if !LuksOpen(c.Runner, rawAlias, p.KeyFile, writeHandle) {
		if !p.Resuming {
			unpulp(buffers[0], readFd, c.Logger)
		}
		return Result{Code: EExitCode.FailedToPerformLuksOpen(), Err: errors.New("cryptsetup luksOpen failed")}
	}
	writeDevPath := "/dev/mapper/" + writeHandle
	defer func() {
		if !DmRemove(c.Runner, writeHandle) {
			c.Logger.Log(ambient.ELogLevel.Warning(), "failed to close LUKS device %s", writeHandle)
		}
	}()

	writeFd, err := os.OpenFile(writeDevPath, os.O_RDWR, 0)
	if err != nil {
		if !p.Resuming {
			unpulp(buffers[0], readFd, c.Logger)
		}
		return Result{Code: EExitCode.FailedToOpenUnlockedCryptoDevice(), Err: errors.Wrapf(err, "opening %s", writeDevPath)}
	}
	defer writeFd.Close()

	writeDevSize, err := DiskSizeOfFd(writeFd)
	if err != nil {
		if !p.Resuming {
			unpulp(buffers[0], readFd, c.Logger)
		}
		return Result{Code: EExitCode.FailedToOpenUnlockedCryptoDevice(), Err: err}
	}
	c.Logger.Log(ambient.ELogLevel.Info(), "size of luksOpen'd write device is %s", ambient.ByteSizeToString(writeDevSize))

	if !plausibilizeSizes(readDevSize, writeDevSize) {
		if !p.Resuming {
			unpulp(buffers[0], readFd, c.Logger)
		}
		return Result{Code: EExitCode.DeviceSizesImplausible(),
			Err: errors.Errorf("read device size %d and write device size %d are implausible", readDevSize, writeDevSize)}
	}

	state.WriteFd = writeFd
	state.WriteDevSize = writeDevSize

	if !p.Resuming {
		state.OutOffset = 0
	} else {
		warn := func(format string, args ...interface{}) { c.Logger.Log(ambient.ELogLevel.Warning(), format, args...) }
		rec, err := ReadResumeRecord(resumeFd, int(p.BlockSize), readDevSize, writeDevSize, p.ReLuksification, p.SafetyChecks, warn)
		if err != nil {
			return Result{Code: EExitCode.FailedToReadResumeFile(), Err: err}
		}
		state.OutOffset = rec.OutOffset
		copy(buffers[0].Full(), rec.ActiveData)
		buffers[0].SetUsed(int(rec.ActiveUsed))
	}

	state.ActiveIndex = 0
	if readDevSize < writeDevSize {
		state.EndOutOffset = readDevSize
	} else {
		state.EndOutOffset = writeDevSize
	}
	state.InOffset = uint64(buffers[0].Used()) + state.OutOffset

	writeResume := func() error {
		rec := &ResumeRecord{
			OutOffset:    state.OutOffset,
			ReadDevSize:  readDevSize,
			WriteDevSize: writeDevSize,
			Reluksifying: p.ReLuksification,
			ActiveUsed:   uint32(state.Buffers[state.ActiveIndex].Used()),
			ActiveData:   state.Buffers[state.ActiveIndex].Full(),
		}
		return WriteResumeRecord(resumeFd, rec)
	}

	copyResult := RunCopyEngine(state, quit, writeResume, c.Logger, p.Fault)

	if err := closeAndSync(readFd, writeFd); err != nil {
		c.Logger.Log(ambient.ELogLevel.Warning(), "failed to sync devices before teardown: %s", err)
	}

	switch copyResult {
	case ECopyResult.Finished():
		if !p.KeepResumeFile {
			_ = os.Remove(p.ResumeFilename)
		}
		return Result{Code: EExitCode.Success()}
	case ECopyResult.ResumeWriteFailed():
		return Result{Code: EExitCode.CopyAbortedFailedToWriteResumeFile(), Err: errors.New("failed to write resume record at shutdown")}
	default:
		return Result{Code: EExitCode.CopyAbortedResumeFileWritten()}
	}
}

// confirmationMessage describes the destructive action about to be taken,
// shown before the interactive confirmation prompt.
func confirmationMessage(p *Parameters) string {
	verb := "LUKSify"
	if p.ReLuksification {
		verb = "reLUKSify"
	}
	if p.Resuming {
		return "Resume " + verb + "ing " + p.RawDevice + " using " + p.ResumeFilename + "?"
	}
	return verb + " " + p.RawDevice + "? This will overwrite its header."
}

// aliasHandle extracts the device-mapper handle name from a /dev/mapper path.
func aliasHandle(path string) string {
	const prefix = "/dev/mapper/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

// plausibilizeSizes rejects write-device sizes that differ from the read
// device by more than the LUKS-header-plus-slack threshold — a much
// larger write device, or one that shrank implausibly, signals something
// went wrong rather than ordinary LUKS header overhead.
func plausibilizeSizes(readDevSize, writeDevSize uint64) bool {
	var diff uint64
	if readDevSize > writeDevSize {
		diff = readDevSize - writeDevSize
	} else {
		diff = writeDevSize - readDevSize
	}
	return diff <= sizePlausibilityThresholdBytes
}

// unpulp is the best-effort recovery primitive: when luksFormat has
// already overwritten the raw device's header but a later setup step
// failed, write back the first chunk (still held in memory from before
// the format) so the original plaintext header isn't permanently lost.
func unpulp(firstChunk *Chunk, readFd *os.File, logger ambient.ILogger) {
	if _, err := firstChunk.WriteAt(readFd, 0); err != nil {
		logger.Log(ambient.ELogLevel.Error(), "failed to restore original header during unpulp recovery: %s", err)
	}
}

func closeAndSync(readFd, writeFd *os.File) error {
	if err := readFd.Sync(); err != nil {
		return errors.Wrap(err, "syncing read device")
	}
	if err := writeFd.Sync(); err != nil {
		return errors.Wrap(err, "syncing write device")
	}
	return nil
}

func openResumeFile(p *Parameters) (*os.File, error) {
	if p.Resuming {
		f, err := os.OpenFile(p.ResumeFilename, os.O_RDWR, 0600)
		if err != nil {
			return nil, errors.Wrapf(err, "opening resume file %s", p.ResumeFilename)
		}
		return f, nil
	}

	f, err := os.OpenFile(p.ResumeFilename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "creating resume file %s", p.ResumeFilename)
	}
	// Pre-extend so later seeks/writes of the fixed-size record never grow
	// the file: every write always lays down the full chunk buffer, never
	// just ActiveUsed bytes.
	size := int64(resumeFixedHeaderSize) + int64(p.BlockSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "pre-extending resume file %s", p.ResumeFilename)
	}
	return f, nil
}

func generateKeyFile(path string) error {
	data := make([]byte, 4096)
	if err := readEntropy(data); err != nil {
		return errors.Wrap(err, "reading entropy for key file")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "creating key file %s", path)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "writing key file %s", path)
	}
	return nil
}
