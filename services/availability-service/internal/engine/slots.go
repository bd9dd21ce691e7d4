package engine

import (
	"context"
	"time"
)

// GranularityMinutes is the fixed step between candidate slot start times.
const GranularityMinutes = 15

// staffDaySlots generates candidate slots for one staff member on one calendar
// day. Candidates start at the working-window start and step every
// GranularityMinutes while the full blocked window (duration plus buffers)
// still fits before the window end. A working window shorter than the blocked
// window yields zero slots; that is expected, not an error.
func (e *Engine) staffDaySlots(ctx context.Context, svc *Service, staff *Staff, day time.Time, wd WorkingDay, slotMinutes int, includeUnavailable bool) ([]TimeSlot, error) {
	startMin, endMin, err := wd.Window()
	if err != nil {
		return nil, err
	}
	total := svc.TotalDurationMinutes()

	// One ledger read covers every candidate: all blocked windows sit inside
	// the working window.
	busy, err := e.ledger.BookedIntervals(ctx, staff.ID, atMinute(day, startMin), atMinute(day, endMin))
	if err != nil {
		return nil, err
	}

	var out []TimeSlot
	for m := startMin; m+total <= endMin; m += GranularityMinutes {
		slotStart := atMinute(day, m)
		blockEnd := slotStart.Add(time.Duration(total) * time.Minute)

		conflicts, err := EvaluateConflicts(staff, slotStart, blockEnd, &wd, busy)
		if err != nil {
			return nil, err
		}
		available := len(conflicts) == 0
		if !available && !includeUnavailable {
			continue
		}
		out = append(out, TimeSlot{
			Start:     slotStart,
			End:       slotStart.Add(time.Duration(slotMinutes) * time.Minute),
			StaffID:   staff.ID,
			ServiceID: svc.ID,
			Available: available,
			Price:     svc.Price,
		})
	}
	return out, nil
}
