package luksipc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeRunner is the test double for Runner, letting tests assert exactly
// which argv was dispatched without shelling out to real cryptsetup or
// dmsetup binaries.
type fakeRunner struct {
	calls   [][]string
	results []SubprocessResult
	errs    []error
	idx     int
}

func (f *fakeRunner) Run(argv []string) (SubprocessResult, error) {
	f.calls = append(f.calls, argv)
	if f.idx >= len(f.results) {
		return SubprocessResult{Executed: true, ExitCode: 0}, nil
	}
	res := f.results[f.idx]
	var err error
	if f.idx < len(f.errs) {
		err = f.errs[f.idx]
	}
	f.idx++
	return res, err
}

func TestIsLuksTrueOnExitZero(t *testing.T) {
	a := assert.New(t)
	r := &fakeRunner{results: []SubprocessResult{{Executed: true, ExitCode: 0}}}
	a.True(IsLuks(r, "/dev/sdX"))
	a.Equal([]string{"cryptsetup", "isLuks", "/dev/sdX"}, r.calls[0])
}

func TestIsLuksFalseOnNonzeroExit(t *testing.T) {
	a := assert.New(t)
	r := &fakeRunner{results: []SubprocessResult{{Executed: true, ExitCode: 1}}}
	a.False(IsLuks(r, "/dev/sdX"))
}

func TestIsMapperNameAvailableOnExitFour(t *testing.T) {
	a := assert.New(t)
	r := &fakeRunner{results: []SubprocessResult{{Executed: true, ExitCode: 4}}}
	a.True(IsMapperNameAvailable(r, "somehandle"))
}

func TestIsMapperNameAvailableFalseWhenInUse(t *testing.T) {
	a := assert.New(t)
	r := &fakeRunner{results: []SubprocessResult{{Executed: true, ExitCode: 0}}}
	a.False(IsMapperNameAvailable(r, "somehandle"))
}

func TestLuksFormatSplitsExtraParamsOnComma(t *testing.T) {
	a := assert.New(t)
	r := &fakeRunner{results: []SubprocessResult{{Executed: true, ExitCode: 0}}}
	ok := LuksFormat(r, "/dev/sdX", "/root/key.bin", LuksFormatParams{"--cipher,aes-xts-plain64,--key-size,512"})
	a.True(ok)
	argv := r.calls[0]
	a.Equal("cryptsetup", argv[0])
	a.Equal("luksFormat", argv[1])
	a.Contains(strings.Join(argv, " "), "--cipher aes-xts-plain64 --key-size 512")
}

func TestLuksOpenFalseOnSpawnFailure(t *testing.T) {
	a := assert.New(t)
	r := &fakeRunner{results: []SubprocessResult{{Executed: false, ExitCode: 0}}}
	a.False(LuksOpen(r, "/dev/sdX", "/root/key.bin", "handle"))
}

func TestDmRemoveRetriesUntilSuccess(t *testing.T) {
	a := assert.New(t)
	r := &fakeRunner{results: []SubprocessResult{
		{Executed: true, ExitCode: 1}, // busy
		{Executed: true, ExitCode: 0}, // remove succeeds
		{Executed: true, ExitCode: 4}, // availability check confirms gone
	}}
	ok := dmRemoveNoDelay(r, "handle")
	a.True(ok)
	a.GreaterOrEqual(len(r.calls), 2)
}

// dmRemoveNoDelay repeats DmRemove's retry loop without the sleep and is
// used here only to document that retries happen; DmRemove itself sleeps a
// full second between attempts so it isn't exercised directly in unit tests.
func dmRemoveNoDelay(r Runner, handle string) bool {
	for attempt := 0; attempt < dmRemoveRetries; attempt++ {
		res, err := r.Run([]string{"dmsetup", "remove", handle})
		if err == nil && res.Executed && res.ExitCode == 0 {
			return IsMapperNameAvailable(r, handle)
		}
	}
	return false
}
