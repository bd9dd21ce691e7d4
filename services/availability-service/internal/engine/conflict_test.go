package engine

import (
	"context"
	"testing"
	"time"
)

// 2026-01-28 is a Wednesday.
func testDay() time.Time {
	return time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
}

func nineToFive() WorkingDay {
	return WorkingDay{Weekday: time.Wednesday, Start: "09:00", End: "17:00", Working: true}
}

func testStaff(id string, skills ...string) *Staff {
	return &Staff{
		ID:     id,
		Active: true,
		Skills: NewStringSet(skills...),
		WorkingHours: map[time.Weekday]WorkingDay{
			time.Monday:    {Weekday: time.Monday, Start: "09:00", End: "17:00", Working: true},
			time.Tuesday:   {Weekday: time.Tuesday, Start: "09:00", End: "17:00", Working: true},
			time.Wednesday: {Weekday: time.Wednesday, Start: "09:00", End: "17:00", Working: true},
			time.Thursday:  {Weekday: time.Thursday, Start: "09:00", End: "17:00", Working: true},
			time.Friday:    {Weekday: time.Friday, Start: "09:00", End: "17:00", Working: true},
		},
	}
}

func TestDetectorAppointmentOverlap(t *testing.T) {
	ledger := NewMemoryLedger()
	staff := testStaff("staff-a")
	day := testDay()
	if err := ledger.AddAppointment(context.Background(), staff.ID, Interval{
		Start: day.Add(10 * time.Hour),
		End:   day.Add(11 * time.Hour),
	}); err != nil {
		t.Fatalf("add appointment: %v", err)
	}

	d := NewDetector(ledger)
	wd := nineToFive()
	conflicts, err := d.Check(context.Background(), staff, day.Add(10*time.Hour+30*time.Minute), day.Add(11*time.Hour+30*time.Minute), &wd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Type != ConflictAppointment {
		t.Fatalf("expected one appointment conflict, got %+v", conflicts)
	}

	// Touching intervals do not conflict (half-open ranges).
	conflicts, err = d.Check(context.Background(), staff, day.Add(11*time.Hour), day.Add(12*time.Hour), &wd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("back-to-back window must be conflict free, got %+v", conflicts)
	}
}

func TestDetectorBreaks(t *testing.T) {
	staff := testStaff("staff-a")
	day := testDay()
	wd := nineToFive()
	wd.Breaks = []Break{{Start: "12:00", End: "13:00", Name: "lunch"}}

	d := NewDetector(NewMemoryLedger())
	conflicts, err := d.Check(context.Background(), staff, day.Add(12*time.Hour+30*time.Minute), day.Add(13*time.Hour+30*time.Minute), &wd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Type != ConflictBreak {
		t.Fatalf("expected one break conflict, got %+v", conflicts)
	}

	// No working day supplied: breaks are skipped, not an error.
	conflicts, err = d.Check(context.Background(), staff, day.Add(12*time.Hour+30*time.Minute), day.Add(13*time.Hour), nil)
	if err != nil {
		t.Fatalf("check without working day: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts without working day, got %+v", conflicts)
	}
}

func TestDetectorTimeOff(t *testing.T) {
	staff := testStaff("staff-a")
	day := testDay()
	staff.TimeOff = []TimeOff{
		{StartDate: day, EndDate: day.AddDate(0, 0, 2), Approved: true, Type: "vacation"},
	}

	wd := nineToFive()
	d := NewDetector(NewMemoryLedger())
	conflicts, err := d.Check(context.Background(), staff, day.Add(10*time.Hour), day.Add(11*time.Hour), &wd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Type != ConflictTimeOff {
		t.Fatalf("expected one time-off conflict, got %+v", conflicts)
	}

	// Unapproved requests never block.
	staff.TimeOff[0].Approved = false
	conflicts, err = d.Check(context.Background(), staff, day.Add(10*time.Hour), day.Add(11*time.Hour), &wd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("unapproved time off must not conflict, got %+v", conflicts)
	}
}

func TestDetectorOutsideHours(t *testing.T) {
	staff := testStaff("staff-a")
	day := testDay()
	wd := nineToFive()

	d := NewDetector(NewMemoryLedger())
	conflicts, err := d.Check(context.Background(), staff, day.Add(7*time.Hour), day.Add(8*time.Hour), &wd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Type != ConflictOutsideHours {
		t.Fatalf("expected outside-hours conflict, got %+v", conflicts)
	}

	offDay := wd
	offDay.Working = false
	conflicts, err = d.Check(context.Background(), staff, day.Add(10*time.Hour), day.Add(11*time.Hour), &offDay)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Type != ConflictOutsideHours {
		t.Fatalf("non-working day must report outside-hours, got %+v", conflicts)
	}
}

func TestDetectorReportsAllReasons(t *testing.T) {
	ledger := NewMemoryLedger()
	staff := testStaff("staff-a")
	day := testDay()
	staff.TimeOff = []TimeOff{{StartDate: day, EndDate: day, Approved: true}}
	if err := ledger.AddAppointment(context.Background(), staff.ID, Interval{
		Start: day.Add(12 * time.Hour),
		End:   day.Add(13 * time.Hour),
	}); err != nil {
		t.Fatalf("add appointment: %v", err)
	}
	wd := nineToFive()
	wd.Breaks = []Break{{Start: "12:00", End: "12:30"}}

	d := NewDetector(ledger)
	conflicts, err := d.Check(context.Background(), staff, day.Add(12*time.Hour), day.Add(13*time.Hour), &wd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	types := map[ConflictType]bool{}
	for _, c := range conflicts {
		types[c.Type] = true
	}
	if !types[ConflictAppointment] || !types[ConflictBreak] || !types[ConflictTimeOff] {
		t.Fatalf("expected appointment, break, and time-off reasons together, got %+v", conflicts)
	}
}

func TestDetectorBadBreakClock(t *testing.T) {
	staff := testStaff("staff-a")
	wd := nineToFive()
	wd.Breaks = []Break{{Start: "noon", End: "13:00"}}
	d := NewDetector(NewMemoryLedger())
	if _, err := d.Check(context.Background(), staff, testDay().Add(10*time.Hour), testDay().Add(11*time.Hour), &wd); err == nil {
		t.Fatal("expected clock parse error")
	}
}
