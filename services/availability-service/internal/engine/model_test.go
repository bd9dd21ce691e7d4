package engine

import (
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	mins, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("parse 09:30: %v", err)
	}
	if mins != 570 {
		t.Fatalf("expected 570 minutes, got %d", mins)
	}

	if _, err := ParseClock("9h30"); err == nil {
		t.Fatal("expected error for malformed clock value")
	}
	var clockErr *ClockError
	if _, err := ParseClock("25:99"); !errors.As(err, &clockErr) {
		t.Fatalf("expected ClockError, got %v", err)
	}
}

func TestServiceValidate(t *testing.T) {
	svc := &Service{ID: "svc-1", DurationMinutes: 0}
	var vErr *ValidationError
	if err := svc.Validate(); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	svc.DurationMinutes = 30
	if err := svc.Validate(); err != nil {
		t.Fatalf("valid service rejected: %v", err)
	}
}

func TestStringSetContainsAll(t *testing.T) {
	held := NewStringSet("cut", "color-treatment", "styling")
	if !held.ContainsAll(NewStringSet("cut", "styling")) {
		t.Fatal("expected subset to be contained")
	}
	if held.ContainsAll(NewStringSet("cut", "perm")) {
		t.Fatal("expected missing skill to fail containment")
	}
	if !held.ContainsAll(nil) {
		t.Fatal("empty requirement must always be contained")
	}
}

func TestTimeOffCovers(t *testing.T) {
	off := TimeOff{
		StartDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
	}
	for day, want := range map[string]bool{
		"2026-03-09": false,
		"2026-03-10": true,
		"2026-03-12": true,
		"2026-03-13": false,
	} {
		d, err := time.Parse("2006-01-02", day)
		if err != nil {
			t.Fatalf("parse %s: %v", day, err)
		}
		// The time of day must not matter for date-only coverage.
		if got := off.Covers(d.Add(13 * time.Hour)); got != want {
			t.Fatalf("Covers(%s) = %v, want %v", day, got, want)
		}
	}
}

func TestIntervalOverlapSymmetry(t *testing.T) {
	base := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(time.Hour)}
	cases := []struct {
		b    Interval
		want bool
	}{
		{Interval{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}, true},
		{Interval{Start: base.Add(-30 * time.Minute), End: base.Add(30 * time.Minute)}, true},
		{Interval{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, false},
		{Interval{Start: base.Add(-time.Hour), End: base}, false},
		{Interval{Start: base.Add(10 * time.Minute), End: base.Add(20 * time.Minute)}, true},
	}
	for i, c := range cases {
		if got := a.Overlaps(c.b); got != c.want {
			t.Fatalf("case %d: a.Overlaps(b) = %v, want %v", i, got, c.want)
		}
		if got := c.b.Overlaps(a); got != c.want {
			t.Fatalf("case %d: overlap is not symmetric", i)
		}
	}
}
