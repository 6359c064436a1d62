package actions

import (
	"regexp"
	"time"

	"github.com/araddon/dateparse"

	"github.com/castmod/castmod/models"
)

var isoTimestampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?`)

const displayTimeFormat = "Jan 2, 2006 3:04 PM MST"

// Rewrites ISO-8601 timestamps embedded in a log reason for display in the given location. Text that fails to parse is left unchanged.
func LocalizeReason(reason string, loc *time.Location) string {
	if loc == nil {
		return reason
	}
	return isoTimestampRegex.ReplaceAllStringFunc(reason, func(ts string) string {
		t, err := dateparse.ParseIn(ts, time.UTC)
		if err != nil {
			return ts
		}
		return t.In(loc).Format(displayTimeFormat)
	})
}

// Localizes reasons in place
func LocalizeLogs(logs []models.ModerationLog, loc *time.Location) {
	for i := range logs {
		logs[i].Reason = LocalizeReason(logs[i].Reason, loc)
	}
}
