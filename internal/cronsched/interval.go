package cronsched

import (
	"fmt"
	"strconv"
)

// parseIntervalMillis parses a Repeated job's Schedule field (stored as
// decimal milliseconds text, see jobstore.fromDomain).
func parseIntervalMillis(s string) (int64, error) {
	millis, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cronsched: invalid interval schedule %q: %w", s, err)
	}
	return millis, nil
}
