package goal

import (
	"time"

	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Pause moves an active goal to paused and remembers when
func (g *Goal) Pause(now time.Time) error {
	if g.Status != StatusActive {
		return ErrInvalidGoalTransition{GoalID: g.ID, From: g.Status, To: StatusPaused}
	}
	g.Status = StatusPaused
	g.PausedAt = &now
	g.UpdatedAt = now
	return nil
}

// Resume reactivates a paused goal, pushing the deadline forward by the time
// spent paused
func (g *Goal) Resume(now time.Time) error {
	if g.Status != StatusPaused {
		return ErrInvalidGoalTransition{GoalID: g.ID, From: g.Status, To: StatusActive}
	}
	if g.Deadline != nil && g.PausedAt != nil {
		shifted := ShiftDeadline(*g.Deadline, *g.PausedAt, now)
		g.Deadline = &shifted
	}
	g.Status = StatusActive
	g.PausedAt = nil
	if next := g.NextContributionDate; next != nil && next.Before(shared.DateOf(now)) {
		g.NextContributionDate = NextContributionDate(g.Frequency, g.DayOfWeek, g.DayOfMonth, now)
	}
	g.UpdatedAt = now
	return nil
}

// Cancel ends a non-terminal goal. Cancelled goals keep their progress.
func (g *Goal) Cancel(now time.Time) error {
	if g.Status.IsTerminal() {
		return ErrInvalidGoalTransition{GoalID: g.ID, From: g.Status, To: StatusCancelled}
	}
	g.Status = StatusCancelled
	g.PausedAt = nil
	g.NextContributionDate = nil
	g.UpdatedAt = now
	return nil
}

// ShiftDeadline adds the whole days between pausedAt and resumedAt to deadline.
// A resume that precedes the pause leaves the deadline unchanged.
func ShiftDeadline(deadline, pausedAt, resumedAt time.Time) time.Time {
	if !resumedAt.After(pausedAt) {
		return deadline
	}
	days := int(resumedAt.Sub(pausedAt) / (24 * time.Hour))
	return deadline.AddDate(0, 0, days)
}

// NextContributionDate computes the next scheduled date strictly after from.
// dayOfWeek uses 0 for Sunday; dayOfMonth is clamped to the month's last day.
// It returns nil for goals without a schedule.
func NextContributionDate(freq Frequency, dayOfWeek, dayOfMonth *int, from time.Time) *time.Time {
	today := shared.DateOf(from)
	var next time.Time

	switch freq {
	case FrequencyDaily:
		next = today.AddDate(0, 0, 1)
	case FrequencyWeekly:
		next = nextWeekday(today, dayOfWeek)
	case FrequencyBiweekly:
		next = nextWeekday(today, dayOfWeek).AddDate(0, 0, 7)
	case FrequencyMonthly:
		day := today.Day()
		if dayOfMonth != nil {
			day = *dayOfMonth
		}
		next = monthDay(today.Year(), today.Month(), day)
		if !next.After(today) {
			next = monthDay(today.Year(), today.Month()+1, day)
		}
	default:
		return nil
	}
	return &next
}

func nextWeekday(today time.Time, dayOfWeek *int) time.Time {
	if dayOfWeek == nil {
		return today.AddDate(0, 0, 7)
	}
	delta := (*dayOfWeek - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return today.AddDate(0, 0, delta)
}

// monthDay builds the given day of month, clamped to the month's length.
// month may overflow into the next year.
func monthDay(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}
