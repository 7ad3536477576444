package executor

import (
	"errors"
	"strings"

	"github.com/apexrun/fixrunner/hostrt"
)

// classifySkip reports whether err is the skip signal spec.md §4.F step 6
// names — "a documented exception type whose qualified name ends in
// .Skipped, or whose message line begins Skipped:" — grounded on
// original_source/src/execution.rs's is_skip_exception/extract_skip_reason.
func classifySkip(err error, rt hostrt.Runtime) (reason string, ok bool) {
	var se *hostrt.SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}

	msg := rt.FormatException(err)
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Skipped:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Skipped:")), true
		}
		if strings.HasSuffix(line, ".Skipped") {
			return "", true
		}
	}
	return "", false
}
