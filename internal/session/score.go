package session

import (
	"math"

	"useaid/internal/store"
)

// Outcome multipliers for the raw framework.
var outcomeMultipliers = map[string]float64{
	"completed": 1.0,
	"partial":   0.75,
	"blocked":   0.5,
	"abandoned": 0.25,
}

// Score computes the 0-100 session score from an evaluation.
//
// The raw framework weights prompt quality and context at 25% each, scope
// and independence at 20% each, and tools leveraged (capped at 5) at 10%.
// The space framework is reserved for future reweighting and currently
// scores like raw; unknown frameworks fall back to raw.
func Score(eval *store.Evaluation, framework string) int {
	if eval == nil {
		return 0
	}
	_ = framework // space is reserved; every framework scores as raw today

	tools := float64(eval.ToolsLeveraged)
	if tools > 5 {
		tools = 5
	}

	raw := 20 * (0.25*clampRating(eval.PromptQuality) +
		0.25*clampRating(eval.ContextProvided) +
		0.20*clampRating(eval.ScopeQuality) +
		0.20*clampRating(eval.IndependenceLevel) +
		0.10*tools)

	if mult, ok := outcomeMultipliers[eval.TaskOutcome]; ok {
		raw *= mult
	}

	score := int(math.Round(raw))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// clampRating bounds a rated input to the 1-5 scale. Zero (absent) stays
// zero so an empty evaluation scores zero rather than the floor.
func clampRating(v int) float64 {
	if v <= 0 {
		return 0
	}
	if v > 5 {
		return 5
	}
	return float64(v)
}
