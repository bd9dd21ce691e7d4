package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryLedgerRangeQuery(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	day := testDay()

	for _, iv := range []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		{Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour)},
	} {
		if err := ledger.AddAppointment(ctx, "staff-a", iv); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	busy, err := ledger.BookedIntervals(ctx, "staff-a", day.Add(9*time.Hour+30*time.Minute), day.Add(11*time.Hour))
	if err != nil {
		t.Fatalf("booked intervals: %v", err)
	}
	if len(busy) != 1 || !busy[0].Start.Equal(day.Add(9*time.Hour)) {
		t.Fatalf("expected only the morning interval, got %+v", busy)
	}

	// Another staff member's calendar is untouched.
	busy, err = ledger.BookedIntervals(ctx, "staff-b", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("booked intervals: %v", err)
	}
	if len(busy) != 0 {
		t.Fatalf("expected empty calendar for staff-b, got %+v", busy)
	}
}

func TestMemoryLedgerRemoveFirstExactMatch(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	day := testDay()
	iv := Interval{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}

	// Duplicates are allowed at insert; remove drops one at a time.
	for i := 0; i < 2; i++ {
		if err := ledger.AddAppointment(ctx, "staff-a", iv); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		removed, err := ledger.RemoveAppointment(ctx, "staff-a", iv)
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if !removed {
			t.Fatalf("remove %d: expected a match", i)
		}
	}
	removed, err := ledger.RemoveAppointment(ctx, "staff-a", iv)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed {
		t.Fatal("third remove must be a miss")
	}
}

// Two concurrent reservations of the same window must admit exactly one.
func TestMemoryLedgerReserveSerializesPerStaff(t *testing.T) {
	ledger := NewMemoryLedger()
	day := testDay()
	iv := Interval{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}

	check := func(busy []Interval) ([]Conflict, error) {
		var conflicts []Conflict
		for _, b := range busy {
			if b.Overlaps(iv) {
				conflicts = append(conflicts, Conflict{Type: ConflictAppointment, Start: b.Start, End: b.End})
			}
		}
		return conflicts, nil
	}

	const attempts = 16
	var wg sync.WaitGroup
	rejected := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conflicts, err := ledger.Reserve(context.Background(), "staff-a", iv, check)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if len(conflicts) > 0 {
				rejected <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(rejected)

	misses := 0
	for range rejected {
		misses++
	}
	if misses != attempts-1 {
		t.Fatalf("expected exactly one successful reservation, got %d rejections of %d attempts", misses, attempts)
	}

	busy, err := ledger.BookedIntervals(context.Background(), "staff-a", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("booked intervals: %v", err)
	}
	if len(busy) != 1 {
		t.Fatalf("ledger holds %d intervals, want 1", len(busy))
	}
}
