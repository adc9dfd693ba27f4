package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for schedule keys.
const DateLayout = "2006-01-02"

// Domain errors
var (
	ErrEmptySlug         = errors.New("partner slug cannot be empty")
	ErrEmptyName         = errors.New("partner name cannot be empty")
	ErrInvalidDate       = errors.New("schedule date must be formatted as YYYY-MM-DD")
	ErrDuplicateDate     = errors.New("schedule date is already taken")
	ErrDuplicateSlug     = errors.New("partner slug is already scheduled")
	ErrEmptyDropAddress  = errors.New("drop address cannot be empty")
	ErrDuplicateDrop     = errors.New("drop address appears more than once for this partner")
	ErrInvalidDropWindow = errors.New("drop end date is before its start date")
	ErrInvalidSpoofDate  = errors.New("spoof date must be YYYY-MM-DD or RFC3339")
	ErrNilLocation       = errors.New("schedule location is required")
)

// DateKey is a calendar date (YYYY-MM-DD) with no time-of-day component.
// Keys in this format compare correctly as strings.
type DateKey string

// ParseDateKey validates s as a calendar date.
// PRE: none
// POST: Returns the key or ErrInvalidDate
func ParseDateKey(s string) (DateKey, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateKey(s), nil
}

// DateKeyOf returns the calendar date t falls on in loc.
func DateKeyOf(t time.Time, loc *time.Location) DateKey {
	return DateKey(t.In(loc).Format(DateLayout))
}

// Compare returns -1, 0 or +1 as k is before, equal to or after other.
func (k DateKey) Compare(other DateKey) int {
	return strings.Compare(string(k), string(other))
}

// String implements fmt.Stringer.
func (k DateKey) String() string { return string(k) }

// Drop is a single collectible release belonging to a partner.
type Drop struct {
	Address   string // contract address, unique within a partner
	Name      string
	Image     string
	Creator   string
	Type      string // erc-721, erc-1155
	Price     string // display price in ETH
	StartDate int64  // epoch milliseconds
	EndDate   int64  // epoch milliseconds
}

// Window returns the drop's start and end as instants.
func (d Drop) Window() (start, end time.Time) {
	return time.UnixMilli(d.StartDate), time.UnixMilli(d.EndDate)
}

// IsLive reports whether now falls within the drop window.
// Informational only; drop selection never filters on it.
// INVARIANT: d is not mutated
func (d Drop) IsLive(now time.Time) bool {
	start, end := d.Window()
	return !now.Before(start) && now.Before(end)
}

// Validate checks if the Drop has valid data.
// PRE: Drop struct is populated
// POST: Returns nil if valid, error otherwise
func (d *Drop) Validate() error {
	if strings.TrimSpace(d.Address) == "" {
		return ErrEmptyDropAddress
	}
	if d.EndDate != 0 && d.EndDate < d.StartDate {
		return ErrInvalidDropWindow
	}
	return nil
}

// Entry is one partner's scheduled reveal.
type Entry struct {
	Date          DateKey
	Slug          string
	Name          string
	URL           string
	Description   string
	BrandColor    string
	Icon          string
	Twitter       string
	ContentDigest string // looks up the partner's article on the content network
	Drops         []Drop // display order; the first drop is the default headline
}

// Validate checks if the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Slug) == "" {
		return ErrEmptySlug
	}
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if _, err := ParseDateKey(string(e.Date)); err != nil {
		return err
	}
	seen := make(map[string]bool, len(e.Drops))
	for i := range e.Drops {
		if err := e.Drops[i].Validate(); err != nil {
			return fmt.Errorf("drop %d of %s: %w", i, e.Slug, err)
		}
		if seen[e.Drops[i].Address] {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateDrop, e.Drops[i].Address, e.Slug)
		}
		seen[e.Drops[i].Address] = true
	}
	return nil
}

// Schedule is the date-keyed table of partner entries.
// It is built once by New and is safe for concurrent reads.
type Schedule struct {
	loc     *time.Location
	byDate  map[DateKey]Entry
	bySlug  map[string]DateKey
	ordered []DateKey // ascending
}

// New validates entries and builds an immutable Schedule.
// Every slug, date and per-partner drop address must be unique.
// PRE: loc is non-nil
// POST: Returns a Schedule holding copies of entries, or the first validation error
func New(loc *time.Location, entries []Entry) (*Schedule, error) {
	if loc == nil {
		return nil, ErrNilLocation
	}
	s := &Schedule{
		loc:    loc,
		byDate: make(map[DateKey]Entry, len(entries)),
		bySlug: make(map[string]DateKey, len(entries)),
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, ok := s.byDate[e.Date]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDate, e.Date)
		}
		if prev, ok := s.bySlug[e.Slug]; ok {
			return nil, fmt.Errorf("%w: %s on %s and %s", ErrDuplicateSlug, e.Slug, prev, e.Date)
		}
		e.Drops = append([]Drop(nil), e.Drops...)
		s.byDate[e.Date] = e
		s.bySlug[e.Slug] = e.Date
		s.ordered = append(s.ordered, e.Date)
	}
	sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i] < s.ordered[j] })
	return s, nil
}

// Location returns the time zone schedule dates are expressed in.
func (s *Schedule) Location() *time.Location { return s.loc }

// Len returns the number of scheduled partners.
func (s *Schedule) Len() int { return len(s.ordered) }

// Dates returns all scheduled dates in ascending order.
// POST: The returned slice is a copy
func (s *Schedule) Dates() []DateKey {
	return append([]DateKey(nil), s.ordered...)
}

// Get returns the entry scheduled on date.
// The entry's drop slice is a copy, so callers cannot alter the schedule.
func (s *Schedule) Get(date DateKey) (Entry, bool) {
	e, ok := s.byDate[date]
	if !ok {
		return Entry{}, false
	}
	e.Drops = append([]Drop(nil), e.Drops...)
	return e, true
}

// Entries returns every entry in ascending date order.
// POST: The returned entries and their drop slices are copies
func (s *Schedule) Entries() []Entry {
	out := make([]Entry, 0, len(s.ordered))
	for _, d := range s.ordered {
		e, _ := s.Get(d)
		out = append(out, e)
	}
	return out
}

// FindBySlug returns the date the partner with slug is scheduled on.
func (s *Schedule) FindBySlug(slug string) (DateKey, bool) {
	d, ok := s.bySlug[slug]
	return d, ok
}

// Today returns the calendar date of now in the schedule's location.
func (s *Schedule) Today(now time.Time) DateKey {
	return DateKeyOf(now, s.loc)
}

// ParseSpoofDate parses a caller-supplied override of the current time.
// A bare date is taken as midnight in loc.
// PRE: loc is non-nil
// POST: Returns the instant or ErrInvalidSpoofDate
func ParseSpoofDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(DateLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSpoofDate, raw)
}
