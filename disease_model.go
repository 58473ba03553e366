package pansim

import (
	"math"

	"github.com/BurntSushi/toml"
)

// NullState and NullDwellTime are the sentinel values used by
// PersonState.CurrentState/NextState and PersonState.DwellTime to mean
// "not applicable" / "not in transition".
const (
	NullState     int8  = -1
	NullDwellTime int32 = -1
)

// distributionSumTolerance bounds how far a categorical distribution's
// probabilities may drift from summing to 1 before it is rejected,
// matching the "small tolerance" called for in spec section 4.1.
const distributionSumTolerance = 1e-6

// rawDiseaseModel is the direct TOML decoding target: one field per
// top-level key described in the external interface section.
type rawDiseaseModel struct {
	States    []string `toml:"states"`
	Groups    []string `toml:"groups"`
	Behaviors []string `toml:"behaviors"`

	UnitTime     float64 `toml:"unit_time"`
	ExposedState string  `toml:"exposed_state"`

	Susceptibility   map[string]map[string]float64            `toml:"susceptibility"`
	Infectivity      map[string]map[string]float64            `toml:"infectivity"`
	BehaviorModifier map[string]map[string]float64            `toml:"behavior_modifier"`
	Progression      map[string]map[string]map[string]float64 `toml:"progression"`
	Distribution     map[string]rawDistribution               `toml:"distribution"`
	DwellTime        map[string]map[string]map[string]string  `toml:"dwell_time"`
}

type rawDistribution struct {
	Dist       string    `toml:"dist"`
	Categories []int32   `toml:"categories"`
	P          []float64 `toml:"p"`
	Value      int32     `toml:"value"`
}

// DiseaseModel is the immutable, per-worker disease parameterization:
// the derived transmission tensor plus the progression and dwell-time
// samplers, all pre-built once at load time.
type DiseaseModel struct {
	States    []string
	Groups    []string
	Behaviors []string

	nameState    map[string]int8
	nameGroup    map[string]int8
	nameBehavior map[string]int8

	NStates    int
	NGroups    int
	NBehaviors int

	UnitTime     float64
	ExposedState int8

	// susceptibility/infectivity are dense [state][group]; a missing
	// entry in the source document is 0, per spec.
	susceptibility [][]float64
	infectivity    [][]float64

	// transmissionProb[sState][sGroup][sBehavior][iState][iGroup][iBehavior]
	transmissionProb [][][][][][]float64

	// progression[state][group] -> sampler over next state
	progression map[int8]map[int8]*CategoricalSampler

	// dwellTime[state][group][nextState] -> sampler over dwell time
	dwellTime map[int8]map[int8]map[int8]Sampler
}

// LoadDiseaseModel parses the declarative TOML disease model at path,
// building the derived transmission tensor and all samplers. It fails
// with an InvalidModel error on any schema problem, unknown name
// reference, non-summing distribution, or out-of-range derived
// transmission probability.
func LoadDiseaseModel(path string) (*DiseaseModel, error) {
	var raw rawDiseaseModel
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, Wrapf(InvalidModel, err, "parsing disease model %q", path)
	}
	return newDiseaseModel(&raw)
}

func newDiseaseModel(raw *rawDiseaseModel) (*DiseaseModel, error) {
	m := &DiseaseModel{
		States:     raw.States,
		Groups:     raw.Groups,
		Behaviors:  raw.Behaviors,
		NStates:    len(raw.States),
		NGroups:    len(raw.Groups),
		NBehaviors: len(raw.Behaviors),
		UnitTime:   raw.UnitTime,
	}
	if m.UnitTime <= 0 {
		return nil, Newf(InvalidModel, "unit_time must be > 0, got %f", m.UnitTime)
	}

	m.nameState = indexNames(raw.States)
	m.nameGroup = indexNames(raw.Groups)
	m.nameBehavior = indexNames(raw.Behaviors)

	exposed, ok := m.nameState[raw.ExposedState]
	if !ok {
		return nil, Newf(InvalidModel, UnknownNameReferenceError, "exposed_state", raw.ExposedState)
	}
	m.ExposedState = exposed

	var err error
	m.susceptibility, err = m.denseTable(raw.Susceptibility, "susceptibility")
	if err != nil {
		return nil, err
	}
	m.infectivity, err = m.denseTable(raw.Infectivity, "infectivity")
	if err != nil {
		return nil, err
	}

	behaviorModifier, err := m.denseBehaviorTable(raw.BehaviorModifier)
	if err != nil {
		return nil, err
	}

	if err := m.computeTransmissionProb(behaviorModifier); err != nil {
		return nil, err
	}

	distributions, err := m.compileDistributions(raw.Distribution)
	if err != nil {
		return nil, err
	}

	if err := m.compileProgression(raw.Progression); err != nil {
		return nil, err
	}

	if err := m.compileDwellTime(raw.DwellTime, distributions); err != nil {
		return nil, err
	}

	return m, nil
}

func indexNames(names []string) map[string]int8 {
	idx := make(map[string]int8, len(names))
	for i, n := range names {
		idx[n] = int8(i)
	}
	return idx
}

// denseTable turns a state-name-keyed, group-name-keyed sparse table
// (as read from TOML) into a dense [state][group] matrix, defaulting
// missing entries to 0, and rejects unknown name references.
func (m *DiseaseModel) denseTable(raw map[string]map[string]float64, field string) ([][]float64, error) {
	out := make([][]float64, m.NStates)
	for i := range out {
		out[i] = make([]float64, m.NGroups)
	}
	for sname, row := range raw {
		s, ok := m.nameState[sname]
		if !ok {
			return nil, Newf(InvalidModel, UnknownNameReferenceError, field, sname)
		}
		for gname, v := range row {
			g, ok := m.nameGroup[gname]
			if !ok {
				return nil, Newf(InvalidModel, UnknownNameReferenceError, field, gname)
			}
			out[s][g] = v
		}
	}
	return out, nil
}

// denseBehaviorTable is denseTable specialized to behavior x behavior,
// defaulting missing entries to 1 (a neutral multiplier) rather than 0.
func (m *DiseaseModel) denseBehaviorTable(raw map[string]map[string]float64) ([][]float64, error) {
	out := make([][]float64, m.NBehaviors)
	for i := range out {
		out[i] = make([]float64, m.NBehaviors)
		for j := range out[i] {
			out[i][j] = 1.0
		}
	}
	for sname, row := range raw {
		s, ok := m.nameBehavior[sname]
		if !ok {
			return nil, Newf(InvalidModel, UnknownNameReferenceError, "behavior_modifier", sname)
		}
		for iname, v := range row {
			i, ok := m.nameBehavior[iname]
			if !ok {
				return nil, Newf(InvalidModel, UnknownNameReferenceError, "behavior_modifier", iname)
			}
			out[s][i] = v
		}
	}
	return out, nil
}

// computeTransmissionProb populates the dense 6-dimensional tensor and
// rejects the model if any derived entry falls outside [0,1].
func (m *DiseaseModel) computeTransmissionProb(behaviorModifier [][]float64) error {
	ns, ng, nb := m.NStates, m.NGroups, m.NBehaviors
	t := make([][][][][][]float64, ns)
	for ss := 0; ss < ns; ss++ {
		t[ss] = make([][][][][]float64, ng)
		for sg := 0; sg < ng; sg++ {
			t[ss][sg] = make([][][][]float64, nb)
			for sb := 0; sb < nb; sb++ {
				t[ss][sg][sb] = make([][][]float64, ns)
				for is := 0; is < ns; is++ {
					t[ss][sg][sb][is] = make([][]float64, ng)
					for ig := 0; ig < ng; ig++ {
						t[ss][sg][sb][is][ig] = make([]float64, nb)
						for ib := 0; ib < nb; ib++ {
							p := m.susceptibility[ss][sg] * m.infectivity[is][ig] * behaviorModifier[sb][ib]
							if p < 0 || p > 1 {
								return Newf(InvalidModel, TransmissionProbRangeError, ss, sg, sb, is, ig, ib, p)
							}
							t[ss][sg][sb][is][ig][ib] = p
						}
					}
				}
			}
		}
	}
	m.transmissionProb = t
	return nil
}

// TransmissionProb returns the pre-computed transmission probability
// for one susceptible/infectious state-group-behavior combination.
func (m *DiseaseModel) TransmissionProb(sState, sGroup, sBehavior, iState, iGroup, iBehavior int8) float64 {
	return m.transmissionProb[sState][sGroup][sBehavior][iState][iGroup][iBehavior]
}

// Susceptibility returns susceptibility[state][group], 0 if unset.
func (m *DiseaseModel) Susceptibility(state, group int8) float64 {
	return m.susceptibility[state][group]
}

// Infectivity returns infectivity[state][group], 0 if unset.
func (m *DiseaseModel) Infectivity(state, group int8) float64 {
	return m.infectivity[state][group]
}

func (m *DiseaseModel) compileDistributions(raw map[string]rawDistribution) (map[string]Sampler, error) {
	out := make(map[string]Sampler, len(raw))
	for name, d := range raw {
		switch d.Dist {
		case "categorical":
			if len(d.Categories) != len(d.P) {
				return nil, Newf(InvalidModel, "distribution %q has %d categories but %d probabilities", name, len(d.Categories), len(d.P))
			}
			dist := make(map[int32]float64, len(d.Categories))
			var sum float64
			for i, c := range d.Categories {
				dist[c] = d.P[i]
				sum += d.P[i]
			}
			if math.Abs(sum-1.0) > distributionSumTolerance {
				return nil, Newf(InvalidModel, DistributionSumError, name, sum, distributionSumTolerance)
			}
			out[name] = NewCategoricalSampler(dist)
		case "fixed":
			out[name] = FixedSampler{Value: d.Value}
		default:
			return nil, Newf(InvalidModel, UnknownDistributionError, name, d.Dist)
		}
	}
	return out, nil
}

func (m *DiseaseModel) compileProgression(raw map[string]map[string]map[string]float64) error {
	m.progression = make(map[int8]map[int8]*CategoricalSampler)
	for sname, groups := range raw {
		state, ok := m.nameState[sname]
		if !ok {
			return Newf(InvalidModel, UnknownNameReferenceError, "progression", sname)
		}
		m.progression[state] = make(map[int8]*CategoricalSampler)
		for gname, nextProbs := range groups {
			group, ok := m.nameGroup[gname]
			if !ok {
				return Newf(InvalidModel, UnknownNameReferenceError, "progression", gname)
			}
			dist := make(map[int32]float64, len(nextProbs))
			var sum float64
			for nsname, p := range nextProbs {
				ns, ok := m.nameState[nsname]
				if !ok {
					return Newf(InvalidModel, UnknownNameReferenceError, "progression", nsname)
				}
				dist[int32(ns)] = p
				sum += p
			}
			if math.Abs(sum-1.0) > distributionSumTolerance {
				return Newf(InvalidModel, DistributionSumError, sname+"."+gname, sum, distributionSumTolerance)
			}
			m.progression[state][group] = NewCategoricalSampler(dist)
		}
	}
	return nil
}

func (m *DiseaseModel) compileDwellTime(raw map[string]map[string]map[string]string, distributions map[string]Sampler) error {
	m.dwellTime = make(map[int8]map[int8]map[int8]Sampler)
	for csname, groups := range raw {
		cs, ok := m.nameState[csname]
		if !ok {
			return Newf(InvalidModel, UnknownNameReferenceError, "dwell_time", csname)
		}
		m.dwellTime[cs] = make(map[int8]map[int8]Sampler)
		for gname, nextStates := range groups {
			g, ok := m.nameGroup[gname]
			if !ok {
				return Newf(InvalidModel, UnknownNameReferenceError, "dwell_time", gname)
			}
			m.dwellTime[cs][g] = make(map[int8]Sampler)
			for nsname, dname := range nextStates {
				ns, ok := m.nameState[nsname]
				if !ok {
					return Newf(InvalidModel, UnknownNameReferenceError, "dwell_time", nsname)
				}
				sampler, ok := distributions[dname]
				if !ok {
					return Newf(InvalidModel, UnknownNameReferenceError, "dwell_time distribution", dname)
				}
				m.dwellTime[cs][g][ns] = sampler
			}
		}
	}
	return nil
}

// Progression returns the next-state sampler for (state, group), and
// whether a progression entry is defined for that pair at all.
func (m *DiseaseModel) Progression(state, group int8) (*CategoricalSampler, bool) {
	byGroup, ok := m.progression[state]
	if !ok {
		return nil, false
	}
	s, ok := byGroup[group]
	return s, ok
}

// DwellTimeSampler returns the dwell-time sampler for the transition
// (state, group) -> nextState.
func (m *DiseaseModel) DwellTimeSampler(state, group, nextState int8) (Sampler, bool) {
	byGroup, ok := m.dwellTime[state]
	if !ok {
		return nil, false
	}
	byNext, ok := byGroup[group]
	if !ok {
		return nil, false
	}
	s, ok := byNext[nextState]
	return s, ok
}

// StateIndex returns the integer code for a state name.
func (m *DiseaseModel) StateIndex(name string) (int8, bool) {
	i, ok := m.nameState[name]
	return i, ok
}

// GroupIndex returns the integer code for a group name.
func (m *DiseaseModel) GroupIndex(name string) (int8, bool) {
	i, ok := m.nameGroup[name]
	return i, ok
}

// BehaviorIndex returns the integer code for a behavior name.
func (m *DiseaseModel) BehaviorIndex(name string) (int8, bool) {
	i, ok := m.nameBehavior[name]
	return i, ok
}

// ComputeVisitOutput is the thin per-model wrapper spec section 4.1
// calls for: it forwards directly to the sweep-line contact kernel.
func (m *DiseaseModel) ComputeVisitOutput(visits []Visit, attrNames []string) VisitOutputFrame {
	return ComputeVisitOutput(visits, attrNames, m)
}

// ComputeProgressionOutput is the thin per-model wrapper around the
// progression kernel.
func (m *DiseaseModel) ComputeProgressionOutput(state PersonState, visitOutputs []VisitOutput, tickTime int32) PersonState {
	return ComputeProgressionOutput(state, visitOutputs, tickTime, m)
}
