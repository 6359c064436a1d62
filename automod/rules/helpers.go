package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/castmod/castmod/automod/engine"
)

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compares v against the rule's optional numeric bounds (named minArg and maxArg). `what` is a capitalized noun phrase for the message, eg "Follower count".
func checkRange(c *engine.CheckContext, what string, v float64, minArg, maxArg string) engine.CheckResult {
	min, hasMin := c.NumberArg(minArg)
	max, hasMax := c.NumberArg(maxArg)
	switch {
	case hasMin && v < min:
		return engine.CheckResult{Result: false, Message: fmt.Sprintf("%s is %s, below the minimum of %s", what, fmtNum(v), fmtNum(min))}
	case hasMax && v > max:
		return engine.CheckResult{Result: false, Message: fmt.Sprintf("%s is %s, above the maximum of %s", what, fmtNum(v), fmtNum(max))}
	}
	return engine.CheckResult{Result: true, Message: fmt.Sprintf("%s is %s", what, fmtNum(v))}
}

// Checks `text` for the rule's "searchText" argument, honoring its "caseSensitive" flag. `where` names the field for the message.
func checkContainsText(c *engine.CheckContext, where, text string) engine.CheckResult {
	needle := c.StringArg("searchText")
	haystack := text
	if !c.BoolArg("caseSensitive") {
		needle = strings.ToLower(needle)
		haystack = strings.ToLower(haystack)
	}
	if needle != "" && strings.Contains(haystack, needle) {
		return engine.CheckResult{Result: true, Message: fmt.Sprintf("%s contains %q", where, c.StringArg("searchText"))}
	}
	return engine.CheckResult{Result: false, Message: fmt.Sprintf("%s does not contain %q", where, c.StringArg("searchText"))}
}
