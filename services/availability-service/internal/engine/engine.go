package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 8

// Engine computes bookable time slots, detects conflicts, and ranks staff for
// assignment. It is a pure computation layer: the ledger it reads is injected,
// service and staff records arrive fully populated from the caller, and every
// query is safe to run concurrently.
type Engine struct {
	ledger   Ledger
	detector *Detector
	logger   *slog.Logger
	tracer   trace.Tracer
	workers  int
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWorkers bounds the per-staff/per-day fan-out.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func New(ledger Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger:   ledger,
		detector: NewDetector(ledger),
		logger:   slog.Default(),
		tracer:   otel.Tracer("availability-engine"),
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DateRange is an inclusive calendar-day range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Options controls a CalculateAvailability query. Zero values mean: a 7-day
// window starting today, all supplied staff, available slots only, slot length
// equal to the service duration.
type Options struct {
	Date               time.Time
	Range              *DateRange
	StaffIDs           []string
	IncludeUnavailable bool
	SlotMinutes        int
}

func (o Options) resolveRange(now time.Time) (first, last time.Time) {
	switch {
	case !o.Date.IsZero():
		d := startOfDay(o.Date)
		return d, d
	case o.Range != nil:
		return startOfDay(o.Range.Start), startOfDay(o.Range.End)
	default:
		d := startOfDay(now)
		return d, d.AddDate(0, 0, 6)
	}
}

// CalculateAvailability returns every candidate slot for the service across the
// qualified members of pool over the resolved date range, sorted by start time
// with ties broken by ascending staff ID.
func (e *Engine) CalculateAvailability(ctx context.Context, svc *Service, pool []*Staff, opts Options) ([]TimeSlot, error) {
	ctx, span := e.tracer.Start(ctx, "engine.CalculateAvailability",
		trace.WithAttributes(attribute.String("service.id", svc.ID), attribute.Int("staff.pool", len(pool))))
	defer span.End()

	if err := svc.Validate(); err != nil {
		return nil, err
	}

	qualified := qualifiedStaff(svc, pool, opts.StaffIDs)
	if len(qualified) == 0 {
		return []TimeSlot{}, nil
	}

	slotMinutes := opts.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = svc.DurationMinutes
	}
	first, last := opts.resolveRange(time.Now())

	type task struct {
		day   time.Time
		staff *Staff
		wd    WorkingDay
	}
	var tasks []task
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, st := range qualified {
			wd, ok := st.WorkingDayOn(day.Weekday())
			if !ok || !wd.Working {
				continue
			}
			tasks = append(tasks, task{day: day, staff: st, wd: wd})
		}
	}

	// Each staff/day is independent work; results land in task order so the
	// final sort is the only ordering step.
	results := make([][]TimeSlot, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, t := range tasks {
		g.Go(func() error {
			slots, err := e.staffDaySlots(gctx, svc, t.staff, t.day, t.wd, slotMinutes, opts.IncludeUnavailable)
			if err != nil {
				return err
			}
			results[i] = slots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []TimeSlot
	for _, r := range results {
		out = append(out, r...)
	}
	sortSlots(out)
	return out, nil
}

// FindNextAvailableSlot searches forward day by day from fromDate, up to the
// service's advance-booking horizon, and returns the first available slot, or
// nil when the whole horizon is booked out.
func (e *Engine) FindNextAvailableSlot(ctx context.Context, svc *Service, pool []*Staff, fromDate time.Time) (*TimeSlot, error) {
	ctx, span := e.tracer.Start(ctx, "engine.FindNextAvailableSlot")
	defer span.End()

	if err := svc.Validate(); err != nil {
		return nil, err
	}
	for i := 0; i < svc.AdvanceBookingDays(); i++ {
		slots, err := e.CalculateAvailability(ctx, svc, pool, Options{Date: fromDate.AddDate(0, 0, i)})
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &slots[0], nil
		}
	}
	return nil, nil
}

// CheckConflicts reports every reason [start, end) is unbookable for staff.
// day may be nil; break and outside-hours checks are then skipped.
func (e *Engine) CheckConflicts(ctx context.Context, staff *Staff, start, end time.Time, day *WorkingDay) ([]Conflict, error) {
	return e.detector.Check(ctx, staff, start, end, day)
}

// AddAppointment records a booked interval without conflict validation;
// overlap is only checked when querying availability. Use Book for a race-free
// check-and-reserve.
func (e *Engine) AddAppointment(ctx context.Context, staffID string, start, end time.Time) error {
	return e.ledger.AddAppointment(ctx, staffID, Interval{Start: start, End: end})
}

// RemoveAppointment drops the exact (start, end) booking. A miss is a no-op
// but is logged: it usually means the caller and the ledger have diverged.
func (e *Engine) RemoveAppointment(ctx context.Context, staffID string, start, end time.Time) (bool, error) {
	removed, err := e.ledger.RemoveAppointment(ctx, staffID, Interval{Start: start, End: end})
	if err != nil {
		return false, err
	}
	if !removed {
		e.logger.Warn("remove matched no appointment",
			"staff_id", staffID,
			"start", start.Format(time.RFC3339),
			"end", end.Format(time.RFC3339),
		)
	}
	return removed, nil
}

// Book reserves the service's full blocked window at start for the given staff
// member. The conflict check and the ledger insert happen atomically per staff,
// so two concurrent bookings of the same window cannot both succeed. A non-empty
// conflict list means the booking was rejected.
func (e *Engine) Book(ctx context.Context, svc *Service, staff *Staff, start time.Time) ([]Conflict, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Book",
		trace.WithAttributes(attribute.String("staff.id", staff.ID), attribute.String("service.id", svc.ID)))
	defer span.End()

	if err := svc.Validate(); err != nil {
		return nil, err
	}
	var day *WorkingDay
	if wd, ok := staff.WorkingDayOn(start.Weekday()); ok {
		day = &wd
	}
	end := start.Add(time.Duration(svc.TotalDurationMinutes()) * time.Minute)
	return e.ledger.Reserve(ctx, staff.ID, Interval{Start: start, End: end}, func(busy []Interval) ([]Conflict, error) {
		return EvaluateConflicts(staff, start, end, day, busy)
	})
}

func qualifiedStaff(svc *Service, pool []*Staff, staffIDs []string) []*Staff {
	var wanted StringSet
	if len(staffIDs) > 0 {
		wanted = NewStringSet(staffIDs...)
	}
	var out []*Staff
	for _, st := range pool {
		if wanted != nil && !wanted.Has(st.ID) {
			continue
		}
		if !st.QualifiedFor(svc) {
			continue
		}
		out = append(out, st)
	}
	return out
}

// sortSlots orders ascending by start time; equal starts across staff resolve
// by ascending staff ID so identical queries return identical orderings.
func sortSlots(slots []TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].StaffID < slots[j].StaffID
	})
}
