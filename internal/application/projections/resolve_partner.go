package projections

import (
	"time"

	"onchainsummer/internal/domain/schedule"
)

// ComingSoonRedirect is where requests for not-yet-revealed partners are sent.
const ComingSoonRedirect = "/#drops"

// ResolutionStatus is the outcome of resolving a slug against the schedule.
type ResolutionStatus int

const (
	ResolutionNotFound ResolutionStatus = iota
	ResolutionNotYetAvailable
	ResolutionAvailable
)

// String implements fmt.Stringer.
func (s ResolutionStatus) String() string {
	switch s {
	case ResolutionAvailable:
		return "available"
	case ResolutionNotYetAvailable:
		return "not_yet_available"
	default:
		return "not_found"
	}
}

// Resolution carries the resolved entry or the reason there is none.
// Entry is set only when Status is ResolutionAvailable; RedirectTo only when
// Status is ResolutionNotYetAvailable.
type Resolution struct {
	Status     ResolutionStatus
	Entry      schedule.Entry
	RedirectTo string
	Today      schedule.DateKey
}

// ResolvePartner finds the entry scheduled for slug and decides whether it is
// visible on the calendar day of now.
// Algorithm: 1) normalize now to a date in the schedule's zone, 2) look up the
// slug's date, 3) redirect if that date is after today, else return the entry.
// PRE: sched is non-nil
// POST: Pure; same inputs yield the same Resolution
func ResolvePartner(sched *schedule.Schedule, slug string, now time.Time) Resolution {
	today := sched.Today(now)

	date, ok := sched.FindBySlug(slug)
	if !ok {
		return Resolution{Status: ResolutionNotFound, Today: today}
	}

	if date.Compare(today) > 0 {
		return Resolution{Status: ResolutionNotYetAvailable, RedirectTo: ComingSoonRedirect, Today: today}
	}

	entry, ok := sched.Get(date)
	if !ok {
		return Resolution{Status: ResolutionNotFound, Today: today}
	}
	return Resolution{Status: ResolutionAvailable, Entry: entry, Today: today}
}
