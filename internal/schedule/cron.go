package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field grammar with names and aliases.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron checks a 5-field expression without building an iterator.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// cronIterator produces successive fire times from a fixed expression. It is
// stateful: each Advance continues from the previously produced time, which
// avoids the double-skip a naive "next from now" computation suffers when
// ticks arrive slightly early.
type cronIterator struct {
	sched cron.Schedule
	last  time.Time
}

func newCronIterator(expr string) (*cronIterator, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &cronIterator{sched: sched}, nil
}

// catchUpBound caps the re-advance loop across clock jumps. A year of
// minutes is far beyond any DST or NTP step.
const catchUpBound = 1000

// Advance returns the next fire time strictly after now, continuing from the
// iterator's own state. Across a clock jump it re-advances past now without
// producing duplicates; if the iterator faults it is recreated from now.
func (it *cronIterator) Advance(now time.Time) time.Time {
	base := it.last
	if base.IsZero() {
		base = now
	}

	next := it.sched.Next(base)
	for i := 0; !next.After(now); i++ {
		if next.IsZero() || i >= catchUpBound {
			// Iterator fault: recreate from now and take its next value.
			next = it.sched.Next(now)
			break
		}
		next = it.sched.Next(next)
	}

	it.last = next
	return next
}
