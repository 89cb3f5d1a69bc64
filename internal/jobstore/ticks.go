package jobstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/secutils-dev/scheduler/internal/cronspec"
	"github.com/secutils-dev/scheduler/internal/model"
)

// nextTickFromSchedule computes a freshly-created job's first next_tick,
// strictly after now, from its Kind/Schedule. OneShot jobs are excluded by
// the caller: their NextTick is set directly, not derived from a schedule.
func nextTickFromSchedule(kind model.JobKind, schedule string, now time.Time) (int64, error) {
	switch kind {
	case model.JobKindRepeated:
		millis, err := strconv.ParseInt(schedule, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("jobstore: invalid interval schedule %q: %w", schedule, err)
		}
		return now.Add(time.Duration(millis) * time.Millisecond).Unix(), nil
	default:
		next, err := cronspec.Next(schedule, now)
		if err != nil {
			return 0, err
		}
		return next.Unix(), nil
	}
}
