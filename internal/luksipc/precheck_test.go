package luksipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreconditionChecksFailWhenBackupFileExists(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup.img")
	writeTestFile(t, backup, []byte("existing"))

	p := &Parameters{
		RawDevice:      "/dev/does-not-exist-luksipc-test",
		ReadDevice:     "/dev/does-not-exist-luksipc-test",
		BackupFile:     backup,
		ResumeFilename: filepath.Join(dir, "resume.bin"),
		KeyFile:        filepath.Join(dir, "key.bin"),
		SafetyChecks:   true,
	}
	r := &fakeRunner{results: []SubprocessResult{{Executed: true, ExitCode: 1}}}

	var lines []string
	_, ok := RunPreconditionChecks(r, p, func(s string) { lines = append(lines, s) })
	a.False(ok)
	a.NotEmpty(lines)
}

func TestPreconditionChecksDemoteToWarningWhenSafetyChecksDisabled(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup.img")
	writeTestFile(t, backup, []byte("existing"))

	p := &Parameters{
		RawDevice:      "/dev/does-not-exist-luksipc-test",
		ReadDevice:     "/dev/does-not-exist-luksipc-test",
		BackupFile:     backup,
		ResumeFilename: filepath.Join(dir, "resume.bin"),
		KeyFile:        filepath.Join(dir, "key.bin"),
		SafetyChecks:   false,
	}
	r := &fakeRunner{results: []SubprocessResult{{Executed: true, ExitCode: 1}}}

	_, ok := RunPreconditionChecks(r, p, func(string) {})
	a.True(ok)
}

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}
