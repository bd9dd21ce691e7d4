package engine

import (
	"context"
	"sync"
	"time"
)

// AppointmentSource is the read contract the conflict detector depends on.
// Implementations return every booked interval for staffID that overlaps the
// half-open range [from, to).
type AppointmentSource interface {
	BookedIntervals(ctx context.Context, staffID string, from, to time.Time) ([]Interval, error)
}

// ConflictCheck re-evaluates a candidate window against the busy intervals seen
// inside a reservation's critical section.
type ConflictCheck func(busy []Interval) ([]Conflict, error)

// Ledger holds booked intervals per staff member.
//
// AddAppointment appends unconditionally: overlap is only checked when querying
// availability, and by Reserve. RemoveAppointment drops the first exact
// (start, end) match and reports whether anything matched, so callers can log
// ledger desynchronization instead of failing silently.
//
// Reserve makes check-then-insert atomic per staff member: the check callback
// runs while that member's calendar is locked against concurrent mutation, and
// the interval is recorded only when the callback reports no conflicts.
type Ledger interface {
	AppointmentSource
	AddAppointment(ctx context.Context, staffID string, iv Interval) error
	RemoveAppointment(ctx context.Context, staffID string, iv Interval) (bool, error)
	Reserve(ctx context.Context, staffID string, iv Interval, check ConflictCheck) ([]Conflict, error)
}

// MemoryLedger is the in-process Ledger used by tests and the no-database mode.
// It keeps a plain interval list per staff plus one mutex per staff so that
// reservations against the same member serialize while different members stay
// fully parallel.
type MemoryLedger struct {
	mu     sync.RWMutex
	booked map[string][]Interval

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		booked: make(map[string][]Interval),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (l *MemoryLedger) staffLock(staffID string) *sync.Mutex {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	lk := l.locks[staffID]
	if lk == nil {
		lk = &sync.Mutex{}
		l.locks[staffID] = lk
	}
	return lk
}

func (l *MemoryLedger) BookedIntervals(_ context.Context, staffID string, from, to time.Time) ([]Interval, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	window := Interval{Start: from, End: to}
	var out []Interval
	for _, iv := range l.booked[staffID] {
		if iv.Overlaps(window) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (l *MemoryLedger) AddAppointment(_ context.Context, staffID string, iv Interval) error {
	lk := l.staffLock(staffID)
	lk.Lock()
	defer lk.Unlock()

	l.mu.Lock()
	l.booked[staffID] = append(l.booked[staffID], iv)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) RemoveAppointment(_ context.Context, staffID string, iv Interval) (bool, error) {
	lk := l.staffLock(staffID)
	lk.Lock()
	defer lk.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.booked[staffID]
	for i, cur := range entries {
		if cur.Start.Equal(iv.Start) && cur.End.Equal(iv.End) {
			l.booked[staffID] = append(entries[:i:i], entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (l *MemoryLedger) Reserve(ctx context.Context, staffID string, iv Interval, check ConflictCheck) ([]Conflict, error) {
	lk := l.staffLock(staffID)
	lk.Lock()
	defer lk.Unlock()

	busy, err := l.BookedIntervals(ctx, staffID, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	conflicts, err := check(busy)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}

	l.mu.Lock()
	l.booked[staffID] = append(l.booked[staffID], iv)
	l.mu.Unlock()
	return nil, nil
}
