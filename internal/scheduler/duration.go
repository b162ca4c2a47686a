package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDurationString parses the teacher's HeartbeatConfig.Every shape: an
// integer followed by ms|s|m|h|d. time.ParseDuration covers everything but
// the "d" (day) suffix, so days are special-cased and the rest delegated.
func parseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("scheduler: empty duration string")
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("scheduler: invalid day duration %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("scheduler: invalid duration %q: %w", s, err)
	}
	return d, nil
}
