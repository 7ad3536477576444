package executor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/apexrun/fixrunner/hostrt"
)

// comparisonRe matches a failing assertion's comparison expression, e.g.
// "assert got == want" or "assert response.status_code == 404". Two-char
// operators are listed before their one-char prefixes so "==" and ">=" are
// not mistaken for a one-char match at the same starting position.
//
// Grounded on original_source/src/execution.rs's extract_comparison_values:
// this engine preserves the same documented limitation — it does not
// handle chained comparisons ("a < b < c") or is/in operators
// (SPEC_FULL.md's assertion-introspection open question).
var comparisonRe = regexp.MustCompile(`assert\s+(.+?)\s*(==|!=|>=|<=|>|<)\s*(.+)`)

// enrichAssertionMessage appends an "Expected/Received" sentinel to
// formatted if al's assertion line is a simple comparison and both sides
// resolve to a name present in al.Locals() (spec.md §4.F step 6). Unlike
// the host runtime this was modelled on, there is no general expression
// evaluator here: only a direct name lookup in Locals is attempted, so
// compound expressions such as attribute access are left un-enriched.
func enrichAssertionMessage(formatted string, al hostrt.AssertionLocals) string {
	line := strings.TrimSpace(al.AssertionLine())
	caps := comparisonRe.FindStringSubmatch(line)
	if caps == nil {
		return formatted
	}
	left, operator, right := strings.TrimSpace(caps[1]), caps[2], strings.TrimSpace(caps[3])

	locals := al.Locals()
	leftRepr, leftOK := reprLocal(locals, left)
	rightRepr, rightOK := reprLocal(locals, right)
	if !leftOK || !rightOK {
		return formatted
	}

	var expected, received string
	switch operator {
	case "==":
		expected, received = rightRepr, leftRepr
	case "!=":
		expected, received = leftRepr, rightRepr
	case ">=", "<=", ">", "<":
		expected, received = rightRepr, leftRepr
	default:
		expected, received = leftRepr, rightRepr
	}

	return fmt.Sprintf("%s\n__ASSERTION_VALUES__\nExpected: %s\nReceived: %s", formatted, expected, received)
}

// reprLocal looks up expr as a direct key in locals and formats its value
// the way a traceback would print it.
func reprLocal(locals map[string]hostrt.Value, expr string) (string, bool) {
	v, ok := locals[expr]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%#v", v), true
}
