package luksipc

import (
	"os"
	"time"

	"github.com/johndoe31415/luksipc/internal/ambient"
)

// CopyResult is the outcome of a copy-engine run.
type CopyResult uint8

const (
	copyResultFinished CopyResult = iota
	copyResultResumable
	copyResultResumeWriteFailed
)

var ECopyResult = CopyResult(copyResultFinished)

func (CopyResult) Finished() CopyResult         { return copyResultFinished }
func (CopyResult) Resumable() CopyResult        { return copyResultResumable }
func (CopyResult) ResumeWriteFailed() CopyResult { return copyResultResumeWriteFailed }

func (r CopyResult) String() string {
	switch r {
	case copyResultFinished:
		return "finished"
	case copyResultResumable:
		return "resumable"
	case copyResultResumeWriteFailed:
		return "resume write failed"
	default:
		return "unknown"
	}
}

// copyStats tracks the running totals the throttled progress printer
// needs: when the run started, when/where it last printed, and how much
// has been copied since the start.
type copyStats struct {
	start          time.Time
	lastShown      time.Time
	lastShownBytes uint64
	copied         uint64
}

const (
	progressMinBytes    = 100 * 1024 * 1024
	progressMinInterval = 5 * time.Second
	progressMaxInterval = 60 * time.Second
)

// CopyEngineState is the mutable cursor/buffer state the copy loop reads
// and advances on every iteration, owned exclusively by the controller
// for the duration of one run.
type CopyEngineState struct {
	ReadFd, WriteFd *os.File
	ReadDevSize     uint64
	WriteDevSize    uint64
	Buffers         [2]*Chunk
	ActiveIndex     int
	InOffset        uint64
	OutOffset       uint64
	EndOutOffset    uint64

	stats copyStats
}

// QuitFlag is polled once per copy-loop iteration, between the read and
// write phases, so a SIGINT/SIGTERM/SIGHUP observed mid-loop still leaves
// the engine exiting at a point where the cursor invariants still hold.
type QuitFlag interface {
	ShouldQuit() bool
}

// RunCopyEngine drives the two-cursor double-buffered copy loop: the read
// cursor always runs at most one chunk ahead of the write cursor, which is
// what lets the LUKS header be laid down over already-preserved plaintext
// without ever colliding with not-yet-read data.
func RunCopyEngine(state *CopyEngineState, quit QuitFlag, writeResume func() error, logger ambient.ILogger, fault DevFaultInjection) CopyResult {
	state.stats.start = time.Now()
	state.stats.lastShown = state.stats.start

	for {
		unused := 1 - state.ActiveIndex
		active := state.Buffers[state.ActiveIndex]
		unusedBuf := state.Buffers[unused]

		remaining := state.EndOutOffset - state.OutOffset
		headroom := int64(remaining) - int64(active.Used())
		bytesToRead := headroom
		if int64(unusedBuf.Capacity()) < bytesToRead {
			bytesToRead = int64(unusedBuf.Capacity())
		}

		readAhead := 0
		if bytesToRead > 0 {
			if fault.FailReadAt != 0 && state.OutOffset >= fault.FailReadAt {
				logger.Log(ambient.ELogLevel.Error(), "simulated read failure injected at out_offset %d", state.OutOffset)
				return writeResumeOrFail(state, writeResume)
			}

			n, err := unusedBuf.ReadAt(state.ReadFd, int64(state.InOffset), int(bytesToRead))
			if err != nil {
				logger.Log(ambient.ELogLevel.Error(), "read error at offset %d: %s", state.InOffset, err)
				return writeResumeOrFail(state, writeResume)
			}
			state.InOffset += uint64(n)
			readAhead = n
		}

		if fault.FailAfterBytes != 0 && state.stats.copied >= fault.FailAfterBytes {
			logger.Log(ambient.ELogLevel.Error(), "simulated I/O failure injected after %d bytes copied", state.stats.copied)
			return writeResumeOrFail(state, writeResume)
		}

		if quit.ShouldQuit() {
			// The read-ahead chunk is not part of the resume record; drop it
			// so the cursors are back at a quiescent point on return.
			unusedBuf.SetUsed(0)
			state.InOffset -= uint64(readAhead)
			return writeResumeOrFail(state, writeResume)
		}

		if remaining < uint64(active.Used()) {
			active.SetUsed(int(remaining))
		}

		n, err := active.WriteAt(state.WriteFd, int64(state.OutOffset))
		if err != nil {
			logger.Log(ambient.ELogLevel.Error(), "write error at offset %d: %s", state.OutOffset, err)
			return writeResumeOrFail(state, writeResume)
		}

		state.OutOffset += uint64(n)
		state.stats.copied += uint64(n)
		active.SetUsed(0)
		state.ActiveIndex = unused

		maybeReportProgress(state, logger)

		if fault.SlowDownPerChunk > 0 {
			time.Sleep(fault.SlowDownPerChunk)
		}

		if state.OutOffset == state.EndOutOffset {
			return ECopyResult.Finished()
		}
	}
}

func writeResumeOrFail(state *CopyEngineState, writeResume func() error) CopyResult {
	if err := writeResume(); err != nil {
		return ECopyResult.ResumeWriteFailed()
	}
	return ECopyResult.Resumable()
}

func maybeReportProgress(state *CopyEngineState, logger ambient.ILogger) {
	if !logger.ShouldLog(ambient.ELogLevel.Info()) {
		return
	}
	now := time.Now()
	sinceLast := now.Sub(state.stats.lastShown)
	bytesSinceLast := state.stats.copied - state.stats.lastShownBytes

	due := (bytesSinceLast >= progressMinBytes && sinceLast >= progressMinInterval) || sinceLast >= progressMaxInterval
	if !due {
		return
	}

	elapsed := now.Sub(state.stats.start).Seconds()
	throughput := float64(0)
	if elapsed > 0 {
		throughput = float64(state.stats.copied) / elapsed
	}
	pct := float64(0)
	if state.EndOutOffset > 0 {
		pct = 100 * float64(state.OutOffset) / float64(state.EndOutOffset)
	}
	var eta time.Duration
	if throughput > 0 {
		remaining := state.EndOutOffset - state.OutOffset
		eta = time.Duration(float64(remaining)/throughput) * time.Second
	}

	logger.Log(ambient.ELogLevel.Info(), "progress: %.1f%%, %s copied, %s, ETA %s",
		pct, ambient.ByteSizeToString(state.stats.copied), ambient.ThroughputToString(throughput), eta.Round(time.Second))

	state.stats.lastShown = now
	state.stats.lastShownBytes = state.stats.copied
}
