package service

import (
	"fmt"
	"strings"
	"time"
)

var upstreamTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

// parseUpstreamTime parses the timestamps the hunt API emits. Values without
// a zone are taken as UTC.
func parseUpstreamTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range upstreamTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
