package storage

import (
	"context"
	"time"

	"github.com/slotwise/slotwise/libs/db"
	"github.com/slotwise/slotwise/services/availability-service/internal/engine"
)

// ScheduleRepository loads the catalog the engine consumes: services with
// their skill requirements, and staff with schedules, breaks, and time off.
// Tenant filtering happens upstream; these reads trust their inputs.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Service(ctx context.Context, id string) (*engine.Service, error) {
	var (
		svc    engine.Service
		skills []string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
			required_skills, category, COALESCE(price::text, ''), max_advance_booking_days
		FROM services
		WHERE id = $1
	`, id).Scan(
		&svc.ID,
		&svc.Name,
		&svc.DurationMinutes,
		&svc.BufferBeforeMinutes,
		&svc.BufferAfterMinutes,
		&skills,
		&svc.Category,
		&svc.Price,
		&svc.MaxAdvanceBookingDays,
	)
	if err != nil {
		return nil, err
	}
	svc.RequiredSkills = engine.NewStringSet(skills...)
	return &svc, nil
}

func (r *ScheduleRepository) Staff(ctx context.Context) ([]*engine.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, is_active, skills, specializations
		FROM staff
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Staff
	byID := map[string]*engine.Staff{}
	for rows.Next() {
		var (
			st              engine.Staff
			skills          []string
			specializations []string
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Active, &skills, &specializations); err != nil {
			return nil, err
		}
		st.Skills = engine.NewStringSet(skills...)
		st.Specializations = engine.NewStringSet(specializations...)
		st.WorkingHours = map[time.Weekday]engine.WorkingDay{}
		out = append(out, &st)
		byID[st.ID] = &st
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := r.loadWorkingHours(ctx, byID); err != nil {
		return nil, err
	}
	if err := r.loadBreaks(ctx, byID); err != nil {
		return nil, err
	}
	if err := r.loadTimeOff(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ScheduleRepository) loadWorkingHours(ctx context.Context, byID map[string]*engine.Staff) error {
	rows, err := r.pool.Query(ctx, `
		SELECT staff_id::text, weekday, start_clock, end_clock, is_working
		FROM staff_working_hours
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			staffID string
			weekday int
			wd      engine.WorkingDay
		)
		if err := rows.Scan(&staffID, &weekday, &wd.Start, &wd.End, &wd.Working); err != nil {
			return err
		}
		st := byID[staffID]
		if st == nil {
			continue
		}
		wd.Weekday = time.Weekday(weekday)
		st.WorkingHours[wd.Weekday] = wd
	}
	return rows.Err()
}

func (r *ScheduleRepository) loadBreaks(ctx context.Context, byID map[string]*engine.Staff) error {
	rows, err := r.pool.Query(ctx, `
		SELECT staff_id::text, weekday, start_clock, end_clock, COALESCE(name, '')
		FROM staff_breaks
		ORDER BY start_clock
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			staffID string
			weekday int
			br      engine.Break
		)
		if err := rows.Scan(&staffID, &weekday, &br.Start, &br.End, &br.Name); err != nil {
			return err
		}
		st := byID[staffID]
		if st == nil {
			continue
		}
		day := time.Weekday(weekday)
		wd, ok := st.WorkingHours[day]
		if !ok {
			continue
		}
		wd.Breaks = append(wd.Breaks, br)
		st.WorkingHours[day] = wd
	}
	return rows.Err()
}

func (r *ScheduleRepository) loadTimeOff(ctx context.Context, byID map[string]*engine.Staff) error {
	rows, err := r.pool.Query(ctx, `
		SELECT staff_id::text, start_date, end_date, is_approved, COALESCE(type, ''), COALESCE(reason, '')
		FROM staff_time_off
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			staffID string
			off     engine.TimeOff
		)
		if err := rows.Scan(&staffID, &off.StartDate, &off.EndDate, &off.Approved, &off.Type, &off.Reason); err != nil {
			return err
		}
		if st := byID[staffID]; st != nil {
			st.TimeOff = append(st.TimeOff, off)
		}
	}
	return rows.Err()
}
