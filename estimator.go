package main

import "sync"

const (
	skillBaseRating       = 800.0
	skillRatingScale      = 1800.0
	skillStabilityCeiling = 20

	suspicionCeiling   = 100.0
	suspicionIncrement = 18.0
	suspicionDecrement = 7.0
)

type SkillEstimate struct {
	Rating    float64 `json:"rating"`
	Stability float64 `json:"stability"`
	Samples   int     `json:"samples"`
}

// SkillEstimator keeps a running opponent profile from (engine top move,
// observed move) pairs. Only moves attributed to the remote participant are
// fed here; local moves never are.
type SkillEstimator struct {
	mu        sync.Mutex
	samples   []bool
	matches   int
	suspicion float64
}

func NewSkillEstimator() *SkillEstimator {
	return &SkillEstimator{}
}

// Observe records one opponent move against the engine's pre-move top
// recommendation. A nil prediction skips the sample entirely: an absent
// prediction is not a divergence. Suspicion moves asymmetrically so a single
// human-like divergence erodes, but does not erase, a streak of engine
// matches.
func (e *SkillEstimator) Observe(engineTop *Move, observed Move) {
	if engineTop == nil {
		return
	}
	match := engineTop.Equals(observed)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = append(e.samples, match)
	if match {
		e.matches++
		e.suspicion += suspicionIncrement
		if e.suspicion > suspicionCeiling {
			e.suspicion = suspicionCeiling
		}
		return
	}
	e.suspicion -= suspicionDecrement
	if e.suspicion < 0 {
		e.suspicion = 0
	}
}

func (e *SkillEstimator) Estimate() SkillEstimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimateLocked()
}

func (e *SkillEstimator) estimateLocked() SkillEstimate {
	count := len(e.samples)
	est := SkillEstimate{Rating: skillBaseRating, Samples: count}
	if count == 0 {
		return est
	}
	est.Rating = skillBaseRating + skillRatingScale*float64(e.matches)/float64(count)
	est.Stability = float64(count) / float64(skillStabilityCeiling)
	if est.Stability > 1 {
		est.Stability = 1
	}
	return est
}

func (e *SkillEstimator) Suspicion() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspicion
}

// Reset clears the rolling samples and the suspicion accumulator together.
func (e *SkillEstimator) Reset() {
	e.mu.Lock()
	e.samples = nil
	e.matches = 0
	e.suspicion = 0
	e.mu.Unlock()
}

// sessionState is the persisted form of the estimator, see session_persistence.go.
type sessionState struct {
	Samples   []bool
	Suspicion float64
}

func (e *SkillEstimator) exportSession() sessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sessionState{
		Samples:   append([]bool(nil), e.samples...),
		Suspicion: e.suspicion,
	}
}

func (e *SkillEstimator) importSession(state sessionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = append([]bool(nil), state.Samples...)
	e.matches = 0
	for _, match := range e.samples {
		if match {
			e.matches++
		}
	}
	e.suspicion = state.Suspicion
	if e.suspicion > suspicionCeiling {
		e.suspicion = suspicionCeiling
	}
	if e.suspicion < 0 {
		e.suspicion = 0
	}
}
