package projections

import (
	"time"

	"onchainsummer/internal/domain/schedule"
)

// ScheduleItem is a revealed partner as shown in the drop listing.
type ScheduleItem struct {
	Date        schedule.DateKey
	Slug        string
	Name        string
	Description string
	Icon        string
	BrandColor  string
	DropCount   int
	LiveDrops   int
}

// ScheduleOverview lists revealed partners and how many are still to come.
// Upcoming partners are counted but never named.
type ScheduleOverview struct {
	Today         schedule.DateKey
	Revealed      []ScheduleItem // newest first
	UpcomingCount int
	NextReveal    schedule.DateKey // empty when nothing is upcoming
}

// QueryListSchedule builds the schedule overview for the calendar day of now.
// PRE: sched is non-nil
// POST: Pure; entries dated after today are excluded from Revealed
func QueryListSchedule(sched *schedule.Schedule, now time.Time) ScheduleOverview {
	today := sched.Today(now)
	overview := ScheduleOverview{Today: today, Revealed: []ScheduleItem{}}

	dates := sched.Dates()
	for i := len(dates) - 1; i >= 0; i-- {
		d := dates[i]
		if d.Compare(today) > 0 {
			overview.UpcomingCount++
			overview.NextReveal = d
			continue
		}
		e, ok := sched.Get(d)
		if !ok {
			continue
		}
		item := ScheduleItem{
			Date:        d,
			Slug:        e.Slug,
			Name:        e.Name,
			Description: e.Description,
			Icon:        e.Icon,
			BrandColor:  e.BrandColor,
			DropCount:   len(e.Drops),
		}
		for _, drop := range e.Drops {
			if drop.IsLive(now) {
				item.LiveDrops++
			}
		}
		overview.Revealed = append(overview.Revealed, item)
	}
	return overview
}
