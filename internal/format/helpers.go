package format

import (
	"fmt"
	"strings"
	"time"
)

// Status renders a pass/fail flag for a summary row.
func Status(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

// Duration formats d as "Xm Ys", "Ys" or, below a second, milliseconds.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to at most maxRunes runes, ending in "..." when cut.
// Newlines are flattened so a detail never breaks a table row.
func Truncate(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if maxRunes <= 0 || len(r) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(r[:maxRunes])
	}
	return string(r[:maxRunes-3]) + "..."
}
