package ambient

import (
	"bytes"
	"strings"
	"testing"
)

func TestBatchHooksAlwaysConfirms(t *testing.T) {
	hooks := NewBatchHooks(NopLogger{})
	if !hooks.Confirm("proceed?") {
		t.Error("batch hooks must always confirm")
	}
}

func TestInteractiveHooksConfirmParsesYes(t *testing.T) {
	cases := map[string]bool{
		"y\n":   true,
		"yes\n": true,
		"Y\n":   true,
		"n\n":   false,
		"\n":    false,
	}
	for input, want := range cases {
		hooks := NewInteractiveHooks(NopLogger{}, strings.NewReader(input), &bytes.Buffer{})
		if got := hooks.Confirm("proceed?"); got != want {
			t.Errorf("Confirm with input %q = %v, want %v", input, got, want)
		}
	}
}

func TestInteractiveHooksConfirmFalseOnEOF(t *testing.T) {
	hooks := NewInteractiveHooks(NopLogger{}, strings.NewReader(""), &bytes.Buffer{})
	if hooks.Confirm("proceed?") {
		t.Error("expected Confirm to report false on EOF with no input")
	}
}
