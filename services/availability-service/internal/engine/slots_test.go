package engine

import (
	"context"
	"testing"
	"time"
)

func hourService(id string) *Service {
	return &Service{ID: id, DurationMinutes: 60}
}

// Working 09:00-17:00 with a 60-minute service and no buffers yields candidate
// starts every 15 minutes from 09:00 through 16:00: (480-60)/15+1 = 29 slots.
func TestSlotsFullOpenDay(t *testing.T) {
	e := New(NewMemoryLedger())
	staff := testStaff("staff-a")
	day := testDay()

	slots, err := e.CalculateAvailability(context.Background(), hourService("svc-1"), []*Staff{staff}, Options{Date: day})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(slots) != 29 {
		t.Fatalf("expected 29 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Start.Format("15:04"))
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(day.Add(16 * time.Hour)) {
		t.Fatalf("expected last slot start 16:00, got %s", last.Start.Format("15:04"))
	}
	for _, s := range slots {
		if s.End.Sub(s.Start) != time.Hour {
			t.Fatalf("slot %s has length %s, want 1h", s.Start.Format("15:04"), s.End.Sub(s.Start))
		}
		if !s.Available {
			t.Fatalf("slot %s marked unavailable on an open day", s.Start.Format("15:04"))
		}
	}
}

func TestSlotsAroundBookedAppointment(t *testing.T) {
	ledger := NewMemoryLedger()
	e := New(ledger)
	staff := testStaff("staff-a")
	day := testDay()
	if err := ledger.AddAppointment(context.Background(), staff.ID, Interval{
		Start: day.Add(10 * time.Hour),
		End:   day.Add(11 * time.Hour),
	}); err != nil {
		t.Fatalf("add appointment: %v", err)
	}

	slots, err := e.CalculateAvailability(context.Background(), hourService("svc-1"), []*Staff{staff}, Options{
		Date:               day,
		IncludeUnavailable: true,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	byStart := map[string]TimeSlot{}
	for _, s := range slots {
		byStart[s.Start.Format("15:04")] = s
	}
	if s, ok := byStart["09:45"]; !ok || s.Available {
		t.Fatalf("slot 09:45 must exist and be unavailable, got %+v", s)
	}
	if s, ok := byStart["11:00"]; !ok || !s.Available {
		t.Fatalf("slot 11:00 must exist and be available, got %+v", s)
	}
}

func TestSlotsExcludeUnavailableByDefault(t *testing.T) {
	ledger := NewMemoryLedger()
	e := New(ledger)
	staff := testStaff("staff-a")
	day := testDay()
	if err := ledger.AddAppointment(context.Background(), staff.ID, Interval{
		Start: day.Add(10 * time.Hour),
		End:   day.Add(11 * time.Hour),
	}); err != nil {
		t.Fatalf("add appointment: %v", err)
	}

	slots, err := e.CalculateAvailability(context.Background(), hourService("svc-1"), []*Staff{staff}, Options{Date: day})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	for _, s := range slots {
		if !s.Available {
			t.Fatalf("default query returned unavailable slot at %s", s.Start.Format("15:04"))
		}
		if s.Start.Before(day.Add(11*time.Hour)) && s.Start.Add(time.Hour).After(day.Add(10*time.Hour)) {
			t.Fatalf("slot %s overlaps the booked hour", s.Start.Format("15:04"))
		}
	}
}

func TestSlotsBuffersExtendBlockedWindow(t *testing.T) {
	ledger := NewMemoryLedger()
	e := New(ledger)
	staff := testStaff("staff-a")
	day := testDay()
	// Appointment at 11:00; a 60-minute service with a 30-minute after-buffer
	// blocks 90 minutes, so a 10:00 start collides even though the displayed
	// slot ends at 11:00.
	if err := ledger.AddAppointment(context.Background(), staff.ID, Interval{
		Start: day.Add(11 * time.Hour),
		End:   day.Add(12 * time.Hour),
	}); err != nil {
		t.Fatalf("add appointment: %v", err)
	}
	svc := &Service{ID: "svc-buf", DurationMinutes: 60, BufferAfterMinutes: 30}

	slots, err := e.CalculateAvailability(context.Background(), svc, []*Staff{staff}, Options{Date: day, IncludeUnavailable: true})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	for _, s := range slots {
		if s.Start.Equal(day.Add(10 * time.Hour)) {
			if s.Available {
				t.Fatal("10:00 slot must be blocked by the after-buffer")
			}
			if s.End.Sub(s.Start) != time.Hour {
				t.Fatalf("displayed slot length must stay 1h, got %s", s.End.Sub(s.Start))
			}
			return
		}
	}
	t.Fatal("10:00 slot missing from results")
}

func TestSlotsServiceLongerThanWindow(t *testing.T) {
	e := New(NewMemoryLedger())
	staff := testStaff("staff-a")
	staff.WorkingHours[time.Wednesday] = WorkingDay{Weekday: time.Wednesday, Start: "09:00", End: "09:30", Working: true}

	slots, err := e.CalculateAvailability(context.Background(), hourService("svc-1"), []*Staff{staff}, Options{Date: testDay()})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected zero slots for a window shorter than the service, got %d", len(slots))
	}
}

func TestSlotsDurationOverride(t *testing.T) {
	e := New(NewMemoryLedger())
	staff := testStaff("staff-a")

	slots, err := e.CalculateAvailability(context.Background(), hourService("svc-1"), []*Staff{staff}, Options{
		Date:        testDay(),
		SlotMinutes: 30,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	for _, s := range slots {
		if s.End.Sub(s.Start) != 30*time.Minute {
			t.Fatalf("expected 30m slot, got %s", s.End.Sub(s.Start))
		}
	}
	// The override changes the displayed length, not the candidate count: the
	// blocked window still spans the full service duration.
	if len(slots) != 29 {
		t.Fatalf("expected 29 candidates, got %d", len(slots))
	}
}

func TestSlotsBadWorkingHours(t *testing.T) {
	e := New(NewMemoryLedger())
	staff := testStaff("staff-a")
	staff.WorkingHours[time.Wednesday] = WorkingDay{Weekday: time.Wednesday, Start: "morning", End: "17:00", Working: true}

	if _, err := e.CalculateAvailability(context.Background(), hourService("svc-1"), []*Staff{staff}, Options{Date: testDay()}); err == nil {
		t.Fatal("expected clock parse error")
	}
}
