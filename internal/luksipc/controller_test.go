package luksipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/johndoe31415/luksipc/internal/ambient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewControllerAssignsDistinctRunIDs(t *testing.T) {
	a := assert.New(t)
	c1 := NewController(&Parameters{}, nil, nil, nil)
	c2 := NewController(&Parameters{}, nil, nil, nil)
	a.NotEqual(c1.RunID, c2.RunID)
}

func TestPlausibilizeSizesAcceptsTypicalLuksOverhead(t *testing.T) {
	a := assert.New(t)
	const oneGiB = 1 << 30
	a.True(plausibilizeSizes(oneGiB, oneGiB-16*1024*1024))
}

func TestPlausibilizeSizesRejectsWildDivergence(t *testing.T) {
	a := assert.New(t)
	const oneGiB = 1 << 30
	a.False(plausibilizeSizes(oneGiB, oneGiB/2))
}

func TestAliasHandleExtractsNameFromMapperPath(t *testing.T) {
	a := assert.New(t)
	a.Equal("alias_raw_deadbeef", aliasHandle("/dev/mapper/alias_raw_deadbeef"))
	a.Equal("bareword", aliasHandle("bareword"))
}

func TestConfirmationMessageDistinguishesModes(t *testing.T) {
	a := assert.New(t)
	p := &Parameters{RawDevice: "/dev/sdx", ReLuksification: false, Resuming: false}
	a.Contains(confirmationMessage(p), "LUKSify")

	p2 := &Parameters{RawDevice: "/dev/sdx", ReLuksification: true, Resuming: false}
	a.Contains(confirmationMessage(p2), "reLUKSify")

	p3 := &Parameters{RawDevice: "/dev/sdx", ResumeFilename: "resume.bin", Resuming: true}
	a.Contains(confirmationMessage(p3), "Resume")
}

func TestGenerateKeyFileWritesFixedSizeWithRestrictedPerms(t *testing.T) {
	a := assert.New(t)
	path := filepath.Join(t.TempDir(), "key.bin")
	a.NoError(generateKeyFile(path))

	info, err := os.Stat(path)
	a.NoError(err)
	a.EqualValues(4096, info.Size())
	a.Equal(os.FileMode(0600), info.Mode().Perm())
}

func TestOpenResumeFileCreatesPreExtendedFile(t *testing.T) {
	a := assert.New(t)
	p := &Parameters{
		Resuming:       false,
		ResumeFilename: filepath.Join(t.TempDir(), "resume.bin"),
		BlockSize:      4096,
	}
	f, err := openResumeFile(p)
	a.NoError(err)
	defer f.Close()

	info, err := f.Stat()
	a.NoError(err)
	a.EqualValues(resumeFixedHeaderSize+4096, info.Size())
}

func TestUnpulpRestoresFirstChunkToDevice(t *testing.T) {
	a := assert.New(t)
	path := filepath.Join(t.TempDir(), "device.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0600))
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	require.NoError(t, err)
	defer f.Close()

	chunk, err := AllocChunk(4096)
	require.NoError(t, err)
	for i := range chunk.Full() {
		chunk.data[i] = byte(i % 251)
	}
	chunk.SetUsed(4096)

	unpulp(chunk, f, ambient.NopLogger{})

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	a.Equal(chunk.Full(), restored)
}

func TestOpenResumeFileResumingRequiresExistingFile(t *testing.T) {
	a := assert.New(t)
	p := &Parameters{
		Resuming:       true,
		ResumeFilename: filepath.Join(t.TempDir(), "does-not-exist.bin"),
	}
	_, err := openResumeFile(p)
	a.Error(err)
}
