package luksipc

import "testing"

// TestExitCodeValuesMatchUpstreamNumbering pins the numeric value of every
// exit code: scripts parsing this tool's exit status across releases
// depend on these never shifting.
func TestExitCodeValuesMatchUpstreamNumbering(t *testing.T) {
	cases := []struct {
		code ExitCode
		want int
	}{
		{EExitCode.Success(), 0},
		{EExitCode.UnspecifiedError(), 1},
		{EExitCode.CopyAbortedResumeFileWritten(), 2},
		{EExitCode.CannotAllocateChunkMemory(), 3},
		{EExitCode.CannotGenerateKeyFile(), 4},
		{EExitCode.CannotInitializeDeviceAlias(), 5},
		{EExitCode.CannotOpenReadDevice(), 6},
		{EExitCode.CannotOpenResumeFile(), 7},
		{EExitCode.CopyAbortedFailedToWriteResumeFile(), 8},
		{EExitCode.DeviceSizesImplausible(), 9},
		{EExitCode.FailedToBackupHeader(), 10},
		{EExitCode.FailedToCloseLuksDevice(), 11},
		{EExitCode.FailedToOpenUnlockedCryptoDevice(), 12},
		{EExitCode.FailedToPerformLuksFormat(), 13},
		{EExitCode.FailedToPerformLuksOpen(), 14},
		{EExitCode.FailedToReadResumeFile(), 15},
		{EExitCode.FailedToRemoveDeviceMapperAlias(), 16},
		{EExitCode.LuksipcWriteDeviceHandleUnavailable(), 17},
		{EExitCode.PreconditionsNotSatisfied(), 18},
		{EExitCode.UnableToGetRawDiskSize(), 19},
		{EExitCode.UnableToReadFirstChunk(), 20},
		{EExitCode.UnableToReadFromStdin(), 21},
		{EExitCode.UnsupportedSmallDiskCornerCase(), 22},
		{EExitCode.UserAbortedProcess(), 23},
		{EExitCode.CannotInitSignalHandlers(), 24},
		{EExitCode.CmdlineParsingError(), 25},
		{EExitCode.CmdlineArgumentError(), 26},
		{EExitCode.CannotGenerateWriteHandle(), 27},
		{EExitCode.PrngInitializationFailed(), 28},
	}
	for _, c := range cases {
		if c.code.Int() != c.want {
			t.Errorf("%s.Int() = %d, want %d", c.code, c.code.Int(), c.want)
		}
	}
}

func TestMinChunkSizeMatchesUpstreamDefault(t *testing.T) {
	if MinChunkSize != 10*1024*1024 {
		t.Errorf("MinChunkSize = %d, want %d", MinChunkSize, 10*1024*1024)
	}
}
