package ambient

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// UIHooks is a struct of function fields rather than an interface so safe
// defaults can be provided and callers only override the one or two
// callbacks they need: a no-op batch-friendly default, or a real stdin
// confirmation prompt for interactive use.
type UIHooks struct {
	Info    func(string)
	Warn    func(string)
	Confirm func(message string) bool
}

// NewBatchHooks returns hooks appropriate for batch mode: informational
// callbacks go to the supplied logger, and confirmation prompts always
// answer "yes" without blocking on stdin.
func NewBatchHooks(logger ILogger) *UIHooks {
	return &UIHooks{
		Info: func(msg string) { logger.Log(ELogLevel.Info(), "%s", msg) },
		Warn: func(msg string) { logger.Log(ELogLevel.Warning(), "%s", msg) },
		Confirm: func(string) bool {
			return true
		},
	}
}

// NewInteractiveHooks returns hooks that prompt on stdin for confirmation,
// for use when batch mode (--i-know-what-im-doing) was not given.
func NewInteractiveHooks(logger ILogger, in io.Reader, out io.Writer) *UIHooks {
	reader := bufio.NewReader(in)
	return &UIHooks{
		Info: func(msg string) { logger.Log(ELogLevel.Info(), "%s", msg) },
		Warn: func(msg string) { logger.Log(ELogLevel.Warning(), "%s", msg) },
		Confirm: func(message string) bool {
			fmt.Fprintf(out, "%s [y/N]: ", message)
			line, err := reader.ReadString('\n')
			if err != nil {
				return false
			}
			answer := strings.ToLower(strings.TrimSpace(line))
			return answer == "y" || answer == "yes"
		},
	}
}
