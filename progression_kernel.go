package pansim

import (
	"math/rand"
)

// ComputeProgressionOutput samples a person's next disease state and
// dwell time, per the four-step sequence in spec section 4.3. The
// canonical ordering -- exposure check, then transition selection,
// then dwell advance, all within one call -- is the choice this
// implementation makes among the two orderings the source material
// left ambiguous; TestComputeProgressionOutputDeterministicDwell pins
// it down.
func ComputeProgressionOutput(state PersonState, visitOutputs []VisitOutput, tickTime int32, model *DiseaseModel) PersonState {
	rng := rand.New(rand.NewSource(state.Seed))

	currentState := state.CurrentState
	nextState := state.NextState
	dwellTime := state.DwellTime

	if dwellTime == NullDwellTime {
		// Step 2: exposure check, a single Bernoulli(p_total) trial
		// drawn from the per-person rng.
		pTotal := combineInfectionProb(visitOutputs)
		if pTotal > 0 && rng.Float64() < pTotal {
			currentState = model.ExposedState
			nextState = NullState
			dwellTime = NullDwellTime
		}

		// Step 3: transition selection.
		if sampler, ok := model.Progression(currentState, state.Group); ok {
			nextState = int8(sampler.Sample(rng))
			if dwellSampler, ok := model.DwellTimeSampler(currentState, state.Group, nextState); ok {
				dwellTime = dwellSampler.Sample(rng)
			}
		}
	}

	// Step 4: dwell advance.
	if dwellTime != NullDwellTime {
		if dwellTime > 0 {
			dwellTime -= tickTime
			if dwellTime < 0 {
				dwellTime = 0
			}
		} else {
			currentState = nextState
			dwellTime = NullDwellTime
			nextState = NullState
		}
	}

	newSeed := int64(rng.Uint64())

	return PersonState{
		PID:          state.PID,
		Group:        state.Group,
		CurrentState: currentState,
		NextState:    nextState,
		DwellTime:    dwellTime,
		Seed:         newSeed,
	}
}

// combineInfectionProb folds the per-visit infection probabilities
// touching one person into a single exposure probability via
// p_total = 1 - prod(1 - p_i), spec section 4.3 step 2.
func combineInfectionProb(visitOutputs []VisitOutput) float64 {
	survival := 1.0
	for _, vo := range visitOutputs {
		survival *= 1.0 - vo.InfProb
	}
	return 1.0 - survival
}
