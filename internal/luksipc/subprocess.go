package luksipc

import (
	stderrors "errors"
	"os"
	"os/exec"

	"github.com/johndoe31415/luksipc/internal/ambient"
	"github.com/pkg/errors"
)

// maxArgv bounds how many arguments a subprocess invocation may carry, a
// sanity ceiling against a malformed LuksFormatParams list producing a
// runaway argv.
const maxArgv = 64

// SubprocessResult reports whether a child process actually ran and, if
// so, what it returned. The caller must check Executed before trusting
// ExitCode — a spawn failure (binary missing, permission denied) leaves
// ExitCode at its zero value.
type SubprocessResult struct {
	Executed bool
	ExitCode int
}

// Runner is the seam unit tests substitute to avoid shelling out to real
// cryptsetup/dmsetup binaries.
type Runner interface {
	Run(argv []string) (SubprocessResult, error)
}

// ExecRunner runs argv[0] with argv[1:] as a real child process.
type ExecRunner struct {
	Logger ambient.ILogger
}

func NewExecRunner(logger ambient.ILogger) *ExecRunner {
	return &ExecRunner{Logger: logger}
}

// Run spawns argv[0], waits for completion, and reports what happened. A
// failure to spawn at all (binary not found, etc.) is reported as
// Executed=false rather than returned as an error: the caller decides what
// a failed precondition check means, the runner never aborts the process.
func (r *ExecRunner) Run(argv []string) (SubprocessResult, error) {
	if len(argv) == 0 {
		return SubprocessResult{}, errors.New("empty argv")
	}
	if len(argv) > maxArgv {
		return SubprocessResult{}, errors.Errorf("argv length %d exceeds maximum of %d", len(argv), maxArgv)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if r.Logger != nil && r.Logger.ShouldLog(ambient.ELogLevel.Debug()) {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if r.Logger != nil {
		r.Logger.Log(ambient.ELogLevel.Debug(), "executing: %v", argv)
	}

	err := cmd.Run()
	if err == nil {
		return SubprocessResult{Executed: true, ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return SubprocessResult{Executed: true, ExitCode: exitErr.ExitCode()}, nil
	}

	// Spawn itself failed (binary missing, permission denied, ...): the
	// bridge never treats this as fatal to the calling process.
	if r.Logger != nil {
		r.Logger.Log(ambient.ELogLevel.Warning(), "failed to execute %v: %s", argv, err)
	}
	return SubprocessResult{Executed: false, ExitCode: 0}, nil
}
