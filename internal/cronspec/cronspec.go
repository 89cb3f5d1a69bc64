// Package cronspec parses 6-field (seconds-precision) cron expressions and
// computes the next occurrence strictly after a given instant. It is the
// single shared parser used by the Cron Scheduler and the Tracker
// Registry's schedule validation.
package cronspec

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether expr is a well-formed 6-field cron expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cronspec: invalid expression %q: %w", expr, err)
	}
	return nil
}

// Next returns the next occurrence of expr strictly after since.
func Next(expr string, since time.Time) (time.Time, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cronspec: invalid expression %q: %w", expr, err)
	}
	return schedule.Next(since), nil
}
