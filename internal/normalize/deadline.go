package normalize

import (
	"regexp"
	"strings"
	"time"
)

const deadlineLayout = "2006.01.02"

var (
	kst             = time.FixedZone("KST", 9*60*60)
	weekdaySuffixRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
)

// ParseDeadline reads the trailing date of a range such as "~ 2025.03.14(금)"
// or "2025.02.01 - 2025.03.14". Text without a separator, or whose trailing
// part is not a date, yields nil.
func ParseDeadline(text string) *time.Time {
	idx := strings.LastIndexAny(text, "~-")
	if idx < 0 {
		return nil
	}
	tail := strings.TrimSpace(text[idx+1:])
	tail = strings.TrimSpace(weekdaySuffixRe.ReplaceAllString(tail, ""))
	if tail == "" {
		return nil
	}
	at, err := time.ParseInLocation(deadlineLayout, tail, kst)
	if err != nil {
		return nil
	}
	return &at
}
