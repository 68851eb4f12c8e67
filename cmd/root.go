// Package cmd wires the luksipc CLI surface to internal/luksipc's
// conversion controller, using a raw-args-struct-plus-cook pattern for
// validating and normalizing flags before they reach the core.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/johndoe31415/luksipc/internal/ambient"
	"github.com/johndoe31415/luksipc/internal/luksipc"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	defaultBlockSize      = 10 * 1024 * 1024
	defaultKeyFile        = "/root/initial_keyfile.bin"
	defaultBackupFile     = "header_backup.img"
	defaultResumeFile     = "resume.bin"
	defaultLogLevel       = 3 // info
	minBlockSizeAlignment = 4096
)

// rawConvertCmdArgs holds the CLI flags exactly as cobra/pflag parsed
// them, before any validation or derivation.
type rawConvertCmdArgs struct {
	rawDevice        string
	readDevice       string
	blockSize        uint64
	backupFile       string
	keyFile          string
	luksFormatParams string
	logLevel         int
	logFile          string
	resume           bool
	resumeFile       string
	noSeatbelt       bool
	batchMode        bool
	keepResumeFile   bool

	devFailAfterBytes uint64
	devFailReadAt     uint64
	devSlowDownMs     int
}

// cook validates and normalizes the raw flags into a luksipc.Parameters,
// returning a cmdline-argument-error on anything that fails validation —
// the same split upstream's checkParameters()/syntax() pairing draws
// between "bad CLI usage" and "runtime failure".
func (raw rawConvertCmdArgs) cook() (*luksipc.Parameters, error) {
	if raw.rawDevice == "" {
		return nil, errors.New("no device to convert was given (use --device)")
	}

	blockSize := raw.blockSize
	if blockSize < luksipc.MinChunkSize {
		return nil, errors.Errorf("blocksize needs to be at least %d bytes, got %d", luksipc.MinChunkSize, blockSize)
	}
	if rem := blockSize % minBlockSizeAlignment; rem != 0 {
		blockSize += minBlockSizeAlignment - rem
	}

	if raw.logLevel < 0 || raw.logLevel > 4 {
		return nil, errors.Errorf("loglevel needs to be between 0 and 4, got %d", raw.logLevel)
	}

	readDevice := raw.readDevice
	reluksifying := true
	if readDevice == "" {
		readDevice = raw.rawDevice
		reluksifying = false
	}

	var extras luksipc.LuksFormatParams
	if raw.luksFormatParams != "" {
		extras = luksipc.LuksFormatParams{raw.luksFormatParams}
	}

	params := &luksipc.Parameters{
		ReadDevice:       readDevice,
		RawDevice:        raw.rawDevice,
		KeyFile:          raw.keyFile,
		BlockSize:        blockSize,
		Resuming:         raw.resume,
		ResumeFilename:   raw.resumeFile,
		BackupFile:       raw.backupFile,
		SafetyChecks:     !raw.noSeatbelt,
		BatchMode:        raw.batchMode,
		ReLuksification:  reluksifying,
		KeepResumeFile:   raw.keepResumeFile,
		LuksFormatParams: extras,
		LogLevel:         uint8(raw.logLevel),
		LogFile:          raw.logFile,
	}

	if raw.devFailAfterBytes > 0 || raw.devFailReadAt > 0 || raw.devSlowDownMs > 0 {
		params.Fault = luksipc.DevFaultInjection{
			FailAfterBytes: raw.devFailAfterBytes,
			FailReadAt:     raw.devFailReadAt,
		}
		if raw.devSlowDownMs > 0 {
			params.Fault.SlowDownPerChunk = time.Duration(raw.devSlowDownMs) * time.Millisecond
		}
	}

	return params, nil
}

// rootCmd is the single top-level command: luksipc performs one action
// (convert, optionally resuming), so there are no sibling subcommands to
// register.
var rootCmd = &cobra.Command{
	Use:     "luksipc",
	Version: ambient.Version,
	Short:   "Converts a block device to LUKS encryption in-place",
	Long: `luksipc converts an existing block device to a LUKS-encrypted block device
without requiring a second device to stage the copy on. It reads one chunk
ahead of where it writes, so the LUKS header can be written over
already-preserved plaintext.`,
	RunE: runConvert,
}

var raw = rawConvertCmdArgs{}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&raw.rawDevice, "device", "d", "", "raw device to convert to LUKS (mandatory)")
	flags.StringVar(&raw.readDevice, "readdev", "", "device to read unencrypted data from, if different from --device (reLUKSification)")
	flags.Uint64VarP(&raw.blockSize, "blocksize", "b", defaultBlockSize, "copy chunk size in bytes, rounded up to the nearest 4096")
	flags.StringVarP(&raw.backupFile, "backupfile", "c", defaultBackupFile, "file to write the raw device header backup to")
	flags.StringVarP(&raw.keyFile, "keyfile", "k", defaultKeyFile, "file to store the generated initial LUKS keyfile in")
	flags.StringVarP(&raw.luksFormatParams, "luksparams", "p", "", "comma-separated extra arguments passed to cryptsetup luksFormat")
	flags.IntVarP(&raw.logLevel, "loglevel", "l", defaultLogLevel, "verbosity from 0 (none) to 4 (debug)")
	flags.StringVar(&raw.logFile, "logfile", "", "write log output to this file instead of stderr")
	flags.BoolVar(&raw.resume, "resume", false, "resume a previously interrupted conversion")
	flags.StringVar(&raw.resumeFile, "resume-file", defaultResumeFile, "resume record path, read on --resume and written on abort")
	flags.BoolVar(&raw.noSeatbelt, "no-seatbelt", false, "disable safety checks (precondition and resume mismatches become warnings)")
	flags.BoolVar(&raw.batchMode, "i-know-what-im-doing", false, "batch mode: never prompt for interactive confirmation")
	flags.BoolVar(&raw.keepResumeFile, "keep-resume-file", false, "do not delete the resume file after a successful conversion")

	flags.Uint64Var(&raw.devFailAfterBytes, "debug-fail-after-bytes", 0, "development only: simulate an I/O error after this many bytes copied")
	flags.Uint64Var(&raw.devFailReadAt, "debug-fail-read-at", 0, "development only: simulate a read error at this output offset")
	flags.IntVar(&raw.devSlowDownMs, "debug-slowdown-ms", 0, "development only: sleep this many milliseconds after every chunk")
	_ = flags.MarkHidden("debug-fail-after-bytes")
	_ = flags.MarkHidden("debug-fail-read-at")
	_ = flags.MarkHidden("debug-slowdown-ms")
}

func runConvert(cmd *cobra.Command, args []string) error {
	params, err := raw.cook()
	if err != nil {
		return err
	}

	logger, err := ambient.NewLogger(ambient.LogLevel(params.LogLevel), params.LogFile)
	if err != nil {
		return errors.Wrap(err, "initializing logger")
	}
	defer logger.Close()

	logger.Log(ambient.ELogLevel.Info(), "%s starting", ambient.UserAgent)

	var ui *ambient.UIHooks
	if params.BatchMode {
		ui = ambient.NewBatchHooks(logger)
	} else {
		ui = ambient.NewInteractiveHooks(logger, os.Stdin, os.Stdout)
	}

	runner := luksipc.NewExecRunner(logger)
	controller := luksipc.NewController(params, runner, logger, ui)

	result := controller.Run()
	if result.Err != nil {
		logger.Log(ambient.ELogLevel.Error(), "%s: %s", result.Code, result.Err)
	} else {
		logger.Log(ambient.ELogLevel.Info(), "terminating: %s", result.Code)
	}

	os.Exit(result.Code.Int())
	return nil
}

// Execute is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(luksipc.EExitCode.CmdlineArgumentError().Int())
	}
}
