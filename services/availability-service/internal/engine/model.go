package engine

import (
	"fmt"
	"time"
)

// DefaultMaxAdvanceBookingDays bounds how far ahead FindNextAvailableSlot searches
// when the service does not set its own horizon.
const DefaultMaxAdvanceBookingDays = 30

// StringSet holds skill and specialization names for constant-time membership tests.
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// ContainsAll reports whether every element of other is present in s.
// An empty (or nil) other is always contained.
func (s StringSet) ContainsAll(other StringSet) bool {
	for v := range other {
		if _, ok := s[v]; !ok {
			return false
		}
	}
	return true
}

// Service describes a bookable offering. Durations and buffers are wall-clock minutes;
// the full window blocked on a staff calendar by one booking is
// DurationMinutes + BufferBeforeMinutes + BufferAfterMinutes.
type Service struct {
	ID                    string
	Name                  string
	DurationMinutes       int
	BufferBeforeMinutes   int
	BufferAfterMinutes    int
	RequiredSkills        StringSet
	Category              string
	Price                 string
	MaxAdvanceBookingDays int
}

func (s *Service) Validate() error {
	if s.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	return nil
}

func (s *Service) TotalDurationMinutes() int {
	return s.DurationMinutes + s.BufferBeforeMinutes + s.BufferAfterMinutes
}

func (s *Service) AdvanceBookingDays() int {
	if s.MaxAdvanceBookingDays > 0 {
		return s.MaxAdvanceBookingDays
	}
	return DefaultMaxAdvanceBookingDays
}

// Staff is a member of the bookable pool. WorkingHours is keyed by weekday; a missing
// entry means the member never works that day.
type Staff struct {
	ID              string
	Name            string
	Skills          StringSet
	Specializations StringSet
	Active          bool
	WorkingHours    map[time.Weekday]WorkingDay
	TimeOff         []TimeOff
}

// QualifiedFor reports whether the member is active and holds every skill the
// service requires.
func (s *Staff) QualifiedFor(svc *Service) bool {
	return s.Active && s.Skills.ContainsAll(svc.RequiredSkills)
}

func (s *Staff) WorkingDayOn(d time.Weekday) (WorkingDay, bool) {
	wd, ok := s.WorkingHours[d]
	return wd, ok
}

// WorkingDay is one weekday entry of a staff schedule. Start and End are "HH:MM"
// local wall-clock values.
type WorkingDay struct {
	Weekday time.Weekday
	Start   string
	End     string
	Working bool
	Breaks  []Break
}

// Window returns the working window as minutes since midnight.
func (w WorkingDay) Window() (startMin, endMin int, err error) {
	startMin, err = ParseClock(w.Start)
	if err != nil {
		return 0, 0, err
	}
	endMin, err = ParseClock(w.End)
	if err != nil {
		return 0, 0, err
	}
	return startMin, endMin, nil
}

// Break is an unbookable stretch inside a working day, "HH:MM" bounds.
type Break struct {
	Start string
	End   string
	Name  string
}

// TimeOff blocks whole calendar days, inclusive on both ends. Only approved
// entries affect availability.
type TimeOff struct {
	StartDate time.Time
	EndDate   time.Time
	Approved  bool
	Type      string
	Reason    string
}

// Covers reports whether day falls inside [StartDate, EndDate] comparing calendar
// dates only.
func (t TimeOff) Covers(day time.Time) bool {
	d := dateOrdinal(day)
	return d >= dateOrdinal(t.StartDate) && d <= dateOrdinal(t.EndDate)
}

// Interval is a half-open booked range [Start, End) on a staff calendar.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses the half-open test: [s1,e1) overlaps [s2,e2) iff s1 < e2 && s2 < e1.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// TimeSlot is one bookable candidate. End - Start always equals the requested slot
// duration; the window actually blocked by booking it may be longer (buffers).
type TimeSlot struct {
	Start     time.Time
	End       time.Time
	StaffID   string
	ServiceID string
	Available bool
	Price     string
}

type ConflictType string

const (
	ConflictAppointment  ConflictType = "appointment"
	ConflictBreak        ConflictType = "break"
	ConflictTimeOff      ConflictType = "time-off"
	ConflictOutsideHours ConflictType = "outside-hours"
)

// Conflict is a reason a candidate window cannot be booked. Conflicts are data,
// never errors.
type Conflict struct {
	Type        ConflictType
	Start       time.Time
	End         time.Time
	Description string
}

// ValidationError reports a domain object that cannot be used as given.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ClockError reports a schedule value that does not parse as "HH:MM".
type ClockError struct {
	Value string
}

func (e *ClockError) Error() string {
	return fmt.Sprintf("invalid clock value %q: want HH:MM", e.Value)
}

// ParseClock converts an "HH:MM" wall-clock value to minutes since midnight.
func ParseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, &ClockError{Value: v}
	}
	return t.Hour()*60 + t.Minute(), nil
}

// atMinute pins a minutes-since-midnight offset onto day's calendar date,
// preserving day's location.
func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).
		Add(time.Duration(minute) * time.Minute)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dateOrdinal flattens a timestamp to a comparable calendar-date number.
func dateOrdinal(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
