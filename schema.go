package pansim

// Visit is one person's presence at one location during one tick. The
// State/Group/Behavior fields reflect the visitor as of the start of
// the tick; Attrs holds the 0/1 visual attribute indicators, in the
// order the model's VISUAL_ATTRIBUTES configuration declares them.
type Visit struct {
	LID       int64
	PID       int64
	Group     int8
	State     int8
	Behavior  int8
	StartTime int32
	EndTime   int32
	Attrs     []int8
}

// Validate enforces the single structural invariant spec section 3
// places on a Visit: a well-formed interval.
func (v Visit) Validate() error {
	if v.StartTime > v.EndTime {
		return Newf(InvalidInput, MalformedVisitError, v.LID, v.PID, v.StartTime, v.EndTime)
	}
	return nil
}

// VisitOutput is the per-visit result of the contact/transmission
// kernel: an infection probability, a contact count, and one counter
// per visual attribute observed during the visit.
type VisitOutput struct {
	LID        int64
	PID        int64
	InfProb    float64
	NContacts  int32
	AttrCounts []int32
}

// PersonState is one person's disease-progression state. Either
// DwellTime and NextState are both NullDwellTime/NullState (not in
// transition), or both are non-negative (in transition to NextState in
// DwellTime remaining time units) -- spec section 3's state invariant.
type PersonState struct {
	PID          int64
	Group        int8
	CurrentState int8
	NextState    int8
	DwellTime    int32
	Seed         int64
}

// InTransition reports whether the state invariant's "in transition"
// branch holds.
func (s PersonState) InTransition() bool {
	return s.DwellTime != NullDwellTime
}

// ValidState checks the state invariant from spec section 3.
func (s PersonState) ValidState() bool {
	if s.DwellTime == NullDwellTime {
		return s.NextState == NullState
	}
	return s.DwellTime >= 0 && s.NextState != NullState
}

// VisitFrame is the record batch carrying one tick's visits, matching
// the "Visit" wire schema in spec section 6. Rows are held as a slice
// of Visit structs, one per row, not as one slice per column. AttrNames
// fixes, at construction time, how many attribute columns each row's
// Attrs slice carries and what they are called.
type VisitFrame struct {
	AttrNames []string
	Rows      []Visit
}

// VisitOutputFrame is the record batch carrying one tick's visit
// outputs, one VisitOutput struct per row.
type VisitOutputFrame struct {
	AttrNames []string
	Rows      []VisitOutput
}

// StateFrame is the record batch carrying a shard of the person-state
// table, one PersonState struct per row.
type StateFrame struct {
	Rows []PersonState
}

// GroupByLID groups a VisitFrame's rows by location id, preserving
// each group's row order. It is the per-tick input to the contact
// kernel, which operates one location at a time.
func (f VisitFrame) GroupByLID() map[int64][]Visit {
	out := make(map[int64][]Visit)
	for _, v := range f.Rows {
		out[v.LID] = append(out[v.LID], v)
	}
	return out
}

// GroupByPID groups a VisitOutputFrame's rows by person id.
func (f VisitOutputFrame) GroupByPID() map[int64][]VisitOutput {
	out := make(map[int64][]VisitOutput)
	for _, r := range f.Rows {
		out[r.PID] = append(out[r.PID], r)
	}
	return out
}

// IndexByPID builds a pid -> row lookup for a StateFrame, matching the
// `current_state_df.set_index("pid")` step the reference pipeline
// performs before joining visit outputs to state.
func (f StateFrame) IndexByPID() map[int64]PersonState {
	out := make(map[int64]PersonState, len(f.Rows))
	for _, r := range f.Rows {
		out[r.PID] = r
	}
	return out
}
