package pansim

import (
	"math/rand"
)

// BehaviorModel is the pluggable tick driver spec section 9 abstracts
// as a capability: given the state the progression kernel just
// produced and the visit outputs the contact kernel just produced,
// produce the state and visit schedule for the next tick. BehaviorActor
// calls it once per tick after gathering the full state frame.
type BehaviorModel interface {
	// RunBehaviorModel returns the (possibly adjusted) state frame and
	// the visit schedule to scatter for the upcoming tick.
	RunBehaviorModel(state StateFrame, visitOutputs VisitOutputFrame) (StateFrame, VisitFrame, error)
}

// ReferenceBehaviorModel replays a fixed rotation of visit schedule
// files, overwriting each visit's state/group columns from the current
// person-state frame before every tick -- the same role setup_visit_df
// plays in the reference behavior module. It optionally seeds a fixed
// number of susceptible people into the model's exposed state, once at
// construction and again on every tick, matching the continuous-seeding
// variant's START_EXPOSED_SEED/TICK_EXPOSED_SEED knobs.
type ReferenceBehaviorModel struct {
	attrNames  []string
	visitFiles []VisitFrame

	exposedState  int8
	susceptible   int8
	startExposed  int
	hasStart      bool
	tickExposed   int
	hasTick       bool
	rng           *rand.Rand
	nextTick      int
}

// NewReferenceBehaviorModel loads every file in cfg.VisitFiles once and
// returns a model ready to drive the first tick from startState. When
// pids is non-nil, every loaded visit file is restricted to rows for
// those people, matching subset_pid in the continuous-seeding reference
// module: a distsim run with several behavior ranks gives each its own
// model over its own partition instead of the whole population.
func NewReferenceBehaviorModel(cfg *Config, model *DiseaseModel, startState StateFrame, pids map[int64]bool) (*ReferenceBehaviorModel, error) {
	frames := make([]VisitFrame, 0, len(cfg.VisitFiles))
	for _, path := range cfg.VisitFiles {
		f, err := LoadVisitScheduleFrame(path, cfg.AttrNames)
		if err != nil {
			return nil, err
		}
		if pids != nil {
			f = filterVisitsByPID(f, pids)
		}
		frames = append(frames, f)
	}

	b := &ReferenceBehaviorModel{
		attrNames:    cfg.AttrNames,
		visitFiles:   frames,
		exposedState: model.ExposedState,
		susceptible:  0,
		startExposed: cfg.StartExposedSeed,
		hasStart:     cfg.HasStartExposed,
		tickExposed:  cfg.TickExposedSeed,
		hasTick:      cfg.HasTickExposed,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
	}

	if b.hasStart {
		forceSusceptible(startState, b.susceptible)
		seedExposed(startState, b.susceptible, b.exposedState, b.startExposed, b.rng)
	}

	return b, nil
}

// InitialVisitFrame returns the tick-0 visit schedule, stamped from the
// (possibly already seeded) start state that NewReferenceBehaviorModel
// was constructed with, and advances the rotation so that the next
// RunBehaviorModel call stamps the file after the first one.
func (b *ReferenceBehaviorModel) InitialVisitFrame(startState StateFrame) VisitFrame {
	b.nextTick = 1
	return stampVisitFrame(b.visitFiles[0], startState, b.attrNames)
}

// RunBehaviorModel applies the continuous-seeding knobs (if configured)
// to stateFrame in place, then stamps the rotation's next visit file
// with the resulting state/group columns.
func (b *ReferenceBehaviorModel) RunBehaviorModel(stateFrame StateFrame, _ VisitOutputFrame) (StateFrame, VisitFrame, error) {
	if b.hasTick {
		seedExposed(stateFrame, b.susceptible, b.exposedState, b.tickExposed, b.rng)
	}

	idx := b.nextTick % len(b.visitFiles)
	b.nextTick++

	return stateFrame, stampVisitFrame(b.visitFiles[idx], stateFrame, b.attrNames), nil
}

func filterVisitsByPID(f VisitFrame, pids map[int64]bool) VisitFrame {
	out := VisitFrame{AttrNames: f.AttrNames}
	for _, v := range f.Rows {
		if pids[v.PID] {
			out.Rows = append(out.Rows, v)
		}
	}
	return out
}

// stampVisitFrame overwrites the state/group columns of every row in
// raw from the current person-state frame, matching setup_visit_df.
func stampVisitFrame(raw VisitFrame, state StateFrame, attrNames []string) VisitFrame {
	byPID := state.IndexByPID()

	out := VisitFrame{AttrNames: attrNames, Rows: make([]Visit, len(raw.Rows))}
	for i, v := range raw.Rows {
		s, ok := byPID[v.PID]
		if ok {
			v.State = s.CurrentState
			v.Group = s.Group
		}
		out.Rows[i] = v
	}
	return out
}

// forceSusceptible resets every person in state to the susceptible
// state with no in-progress transition, clobbering whatever
// START_STATE_FILE loaded. The continuous-seeding model's
// START_EXPOSED_SEED setup does exactly this (_current_state[:] =
// self.succ_state) before sampling k people to expose, so that the k
// are drawn from the whole population rather than whatever subset of
// it happened to already be susceptible.
func forceSusceptible(state StateFrame, susceptible int8) {
	for i := range state.Rows {
		state.Rows[i].CurrentState = susceptible
		state.Rows[i].NextState = NullState
		state.Rows[i].DwellTime = NullDwellTime
	}
}

// seedExposed draws up to k people currently in fromState and moves
// them to toState, clearing any in-progress transition, matching the
// continuous-seeding model's sampling-without-replacement behavior
// (random.sample over the susceptible population).
func seedExposed(state StateFrame, fromState, toState int8, k int, rng *rand.Rand) {
	candidates := make([]int, 0, len(state.Rows))
	for i, r := range state.Rows {
		if r.CurrentState == fromState {
			candidates = append(candidates, i)
		}
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	for _, i := range candidates[:k] {
		state.Rows[i].CurrentState = toState
		state.Rows[i].NextState = NullState
		state.Rows[i].DwellTime = NullDwellTime
	}
}
