package pansim

import (
	"math"
	"sort"
)

// eventType orders END strictly before START at equal times, which is
// the tie-break spec section 4.2 calls essential: a person whose visit
// ends exactly when another's begins must not accrue a contact.
type eventType int8

const (
	eventEnd   eventType = 0
	eventStart eventType = 1
)

type sweepEvent struct {
	time  int32
	kind  eventType
	visit int
}

// ComputeVisitOutput runs the sweep-line contact/transmission kernel
// over every visit to a single location during one tick, per spec
// section 4.2. It is pure and allocation-light: presence is tracked
// with boolean slices sized to len(visits) rather than maps, since the
// visit indices are dense integers known up front.
func ComputeVisitOutput(visits []Visit, attrNames []string, model *DiseaseModel) VisitOutputFrame {
	n := len(visits)
	events := make([]sweepEvent, 0, 2*n)
	for i, v := range visits {
		events = append(events, sweepEvent{time: v.StartTime, kind: eventStart, visit: i})
		events = append(events, sweepEvent{time: v.EndTime, kind: eventEnd, visit: i})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].time != events[j].time {
			return events[i].time < events[j].time
		}
		return events[i].kind < events[j].kind
	})

	curAll := make([]bool, n)
	curSusc := make([]bool, n)
	curInfc := make([]bool, n)
	curAttr := make([]int32, len(attrNames))
	curOccupancy := int32(0)

	infProb := make([]float64, n)
	nContacts := make([]int32, n)
	attrCounts := make([][]int32, n)
	for i := range attrCounts {
		attrCounts[i] = make([]int32, len(attrNames))
	}

	susceptibleIdx := make([]int, 0, n)
	infectiousIdx := make([]int, 0, n)

	havePrev := false
	var prevTime int32
	for _, ev := range events {
		if havePrev {
			accumulateTransmission(visits, susceptibleIdx, infectiousIdx, prevTime, ev.time, model, infProb)
		}

		switch ev.kind {
		case eventStart:
			v := ev.visit
			copy(attrCounts[v], curAttr)
			nContacts[v] = curOccupancy

			visit := visits[v]
			for a := range attrNames {
				if attrSet(visit, a) {
					for u := 0; u < n; u++ {
						if curAll[u] {
							attrCounts[u][a]++
						}
					}
				}
			}
			for u := 0; u < n; u++ {
				if curAll[u] {
					nContacts[u]++
				}
			}

			curAll[v] = true
			s, g := visit.State, visit.Group
			if model.Susceptibility(s, g) > 0 {
				curSusc[v] = true
				susceptibleIdx = append(susceptibleIdx, v)
			}
			if model.Infectivity(s, g) > 0 {
				curInfc[v] = true
				infectiousIdx = append(infectiousIdx, v)
			}
			for a := range attrNames {
				if attrSet(visit, a) {
					curAttr[a]++
				}
			}
			curOccupancy++

		case eventEnd:
			v := ev.visit
			curAll[v] = false
			if curSusc[v] {
				curSusc[v] = false
				susceptibleIdx = removeInt(susceptibleIdx, v)
			}
			if curInfc[v] {
				curInfc[v] = false
				infectiousIdx = removeInt(infectiousIdx, v)
			}
			visit := visits[v]
			for a := range attrNames {
				if attrSet(visit, a) {
					curAttr[a]--
				}
			}
			curOccupancy--
		}

		prevTime = ev.time
		havePrev = true
	}

	out := VisitOutputFrame{AttrNames: attrNames, Rows: make([]VisitOutput, n)}
	for i, v := range visits {
		out.Rows[i] = VisitOutput{
			LID:        v.LID,
			PID:        v.PID,
			InfProb:    infProb[i],
			NContacts:  nContacts[i],
			AttrCounts: attrCounts[i],
		}
	}
	return out
}

// accumulateTransmission applies step 1 of the sweep (spec section
// 4.2) over the interval [from, to]: every susceptible/infectious pair
// currently present accumulates the survival-formulation update.
func accumulateTransmission(visits []Visit, susceptibleIdx, infectiousIdx []int, from, to int32, model *DiseaseModel, infProb []float64) {
	if len(susceptibleIdx) == 0 || len(infectiousIdx) == 0 {
		return
	}
	dt := to - from
	if dt <= 0 {
		return
	}
	duration := float64(dt) / model.UnitTime

	for _, s := range susceptibleIdx {
		sv := visits[s]
		acc := infProb[s]
		for _, i := range infectiousIdx {
			iv := visits[i]
			p := model.TransmissionProb(sv.State, sv.Group, sv.Behavior, iv.State, iv.Group, iv.Behavior)
			pDur := pmul(p, duration)
			acc = padd(acc, pDur)
		}
		infProb[s] = acc
	}
}

// padd combines two independent infection probabilities via the
// multiplicative survival formulation: 1 - (1-p)(1-q).
func padd(p, q float64) float64 {
	return 1.0 - (1.0-p)*(1.0-q)
}

// pmul raises a probability's survival complement to the n-th power:
// the probability of at least one success across n independent trials
// each with probability p.
func pmul(p, n float64) float64 {
	return 1.0 - math.Pow(1.0-p, n)
}

func attrSet(v Visit, a int) bool {
	return a < len(v.Attrs) && v.Attrs[a] != 0
}

func removeInt(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			s[i] = s[len(s)-1]
			return s[:len(s)-1]
		}
	}
	return s
}
