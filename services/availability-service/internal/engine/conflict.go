package engine

import (
	"context"
	"fmt"
	"time"
)

// Detector finds every reason a candidate window is unbookable for a staff
// member. Checks run independently (no short-circuit) so callers see the full
// list of applicable reasons.
type Detector struct {
	source AppointmentSource
}

func NewDetector(source AppointmentSource) *Detector {
	return &Detector{source: source}
}

// Check reads the ledger for [start, end) and evaluates all conflict rules.
// day may be nil when no schedule entry exists for the weekday; break and
// outside-hours checks are then skipped.
func (d *Detector) Check(ctx context.Context, staff *Staff, start, end time.Time, day *WorkingDay) ([]Conflict, error) {
	busy, err := d.source.BookedIntervals(ctx, staff.ID, start, end)
	if err != nil {
		return nil, err
	}
	return EvaluateConflicts(staff, start, end, day, busy)
}

// EvaluateConflicts is the pure rule set behind Check. It is also what Reserve
// replays inside a ledger's critical section, with busy pinned to the intervals
// visible under the per-staff lock.
func EvaluateConflicts(staff *Staff, start, end time.Time, day *WorkingDay, busy []Interval) ([]Conflict, error) {
	window := Interval{Start: start, End: end}
	var conflicts []Conflict

	for _, iv := range busy {
		if iv.Overlaps(window) {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictAppointment,
				Start:       iv.Start,
				End:         iv.End,
				Description: fmt.Sprintf("existing appointment %s-%s", iv.Start.Format("15:04"), iv.End.Format("15:04")),
			})
		}
	}

	if day != nil {
		breakConflicts, err := breakOverlaps(window, *day)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, breakConflicts...)

		outside, err := outsideHours(window, *day)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, outside...)
	}

	for _, off := range staff.TimeOff {
		if !off.Approved {
			continue
		}
		if !off.Covers(start) {
			continue
		}
		kind := off.Type
		if kind == "" {
			kind = "time off"
		}
		conflicts = append(conflicts, Conflict{
			Type:        ConflictTimeOff,
			Start:       startOfDay(start),
			End:         atMinute(start, 24*60),
			Description: "approved " + kind,
		})
	}

	return conflicts, nil
}

func breakOverlaps(window Interval, day WorkingDay) ([]Conflict, error) {
	var conflicts []Conflict
	for _, br := range day.Breaks {
		startMin, err := ParseClock(br.Start)
		if err != nil {
			return nil, err
		}
		endMin, err := ParseClock(br.End)
		if err != nil {
			return nil, err
		}
		iv := Interval{Start: atMinute(window.Start, startMin), End: atMinute(window.Start, endMin)}
		if !iv.Overlaps(window) {
			continue
		}
		name := br.Name
		if name == "" {
			name = "break"
		}
		conflicts = append(conflicts, Conflict{
			Type:        ConflictBreak,
			Start:       iv.Start,
			End:         iv.End,
			Description: fmt.Sprintf("%s %s-%s", name, br.Start, br.End),
		})
	}
	return conflicts, nil
}

// outsideHours flags windows not fully inside the working window. The slot
// generator never produces such candidates; this fires for direct conflict
// checks and assignment requests at arbitrary times.
func outsideHours(window Interval, day WorkingDay) ([]Conflict, error) {
	if !day.Working {
		return []Conflict{{
			Type:        ConflictOutsideHours,
			Start:       window.Start,
			End:         window.End,
			Description: "not working on " + window.Start.Weekday().String(),
		}}, nil
	}
	startMin, endMin, err := day.Window()
	if err != nil {
		return nil, err
	}
	dayStart := atMinute(window.Start, startMin)
	dayEnd := atMinute(window.Start, endMin)
	if window.Start.Before(dayStart) || window.End.After(dayEnd) {
		return []Conflict{{
			Type:        ConflictOutsideHours,
			Start:       window.Start,
			End:         window.End,
			Description: fmt.Sprintf("outside working hours %s-%s", day.Start, day.End),
		}}, nil
	}
	return nil, nil
}
