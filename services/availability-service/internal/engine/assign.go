package engine

import (
	"context"
	"sort"
	"time"
)

// Scoring weights. Skill match scales its weight by the fraction of required
// skills held; specialization and the conflict-free bonus are flat.
const (
	skillWeight          = 40.0
	specializationWeight = 30.0
	availabilityBonus    = 30.0
)

// Assignment is the result of ranking staff for a requested time. Staff is nil
// and Score is -1 when nobody qualifies or everyone has a conflict.
type Assignment struct {
	Staff   *Staff
	Score   float64
	Reasons []string
}

// OptimalAssignment scores every qualified, conflict-free member of pool for
// booking the service at requestedTime and returns the best. Any conflict over
// the full blocked window disqualifies a candidate outright. Candidates are
// evaluated in ascending staff-ID order, and a tie keeps the earlier candidate,
// so equal scores resolve to the lowest staff ID.
func (e *Engine) OptimalAssignment(ctx context.Context, svc *Service, pool []*Staff, requestedTime time.Time) (Assignment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.OptimalAssignment")
	defer span.End()

	if err := svc.Validate(); err != nil {
		return Assignment{}, err
	}

	candidates := make([]*Staff, len(pool))
	copy(candidates, pool)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	end := requestedTime.Add(time.Duration(svc.TotalDurationMinutes()) * time.Minute)
	best := Assignment{Score: -1}
	for _, st := range candidates {
		if !st.QualifiedFor(svc) {
			continue
		}

		var day *WorkingDay
		if wd, ok := st.WorkingDayOn(requestedTime.Weekday()); ok {
			day = &wd
		}
		conflicts, err := e.detector.Check(ctx, st, requestedTime, end, day)
		if err != nil {
			return Assignment{}, err
		}
		if len(conflicts) > 0 {
			continue
		}

		score := 0.0
		var reasons []string

		skillMatch := skillFraction(svc.RequiredSkills, st.Skills)
		score += skillMatch * skillWeight
		if skillMatch > 0.8 {
			reasons = append(reasons, "Excellent skill match")
		}

		if svc.Category != "" && st.Specializations.Has(svc.Category) {
			score += specializationWeight
			reasons = append(reasons, "Relevant specialization")
		}

		score += availabilityBonus
		reasons = append(reasons, "No scheduling conflicts")

		if score > best.Score {
			best = Assignment{Staff: st, Score: score, Reasons: reasons}
		}
	}
	return best, nil
}

// skillFraction is the share of required skills held, 1.0 when the service
// requires none.
func skillFraction(required, held StringSet) float64 {
	if len(required) == 0 {
		return 1.0
	}
	matched := 0
	for skill := range required {
		if held.Has(skill) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}
