package pansim

import (
	"container/heap"
	"math"
	"sort"
)

// PartitionEntry is one row of a location or person partition table:
// the entity's id and the (node, cpu) it was assigned to.
type PartitionEntry struct {
	ID   int64
	Node int
	CPU  int
}

// PartitionTable maps an entity id to the partition it was assigned,
// in both row and lookup form.
type PartitionTable struct {
	NCPUPerNode int
	Rows        []PartitionEntry
}

// Rank returns the flat partition index (node*NCPUPerNode + cpu) for
// an entry, the same linearization the config actor uses to turn a
// (node, cpu) pair into a rank number.
func (e PartitionEntry) Rank(nCPUPerNode int) int {
	return e.Node*nCPUPerNode + e.CPU
}

// RankMap builds an id -> flat rank lookup from a partition table.
func (t PartitionTable) RankMap() map[int64]int {
	out := make(map[int64]int, len(t.Rows))
	for _, r := range t.Rows {
		out[r.ID] = r.Rank(t.NCPUPerNode)
	}
	return out
}

// partHeapItem is a (cumulative load, partition index) pair ordered by
// load, with ties broken by partition id, matching the Python
// reference's heapq usage exactly (heapq compares tuples
// lexicographically).
type partHeapItem struct {
	load float64
	part int
}

type partHeap []partHeapItem

func (h partHeap) Len() int { return len(h) }
func (h partHeap) Less(i, j int) bool {
	if h[i].load != h[j].load {
		return h[i].load < h[j].load
	}
	return h[i].part < h[j].part
}
func (h partHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *partHeap) Push(x interface{}) { *h = append(*h, x.(partHeapItem)) }
func (h *partHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Partition assigns every location and person appearing in visits to
// one of nNodes*nCPUPerNode partitions, per the greedy algorithm in
// spec section 4.4: locations first, weighted by |pids(lid)| *
// log2(|pids(lid)|+1) and assigned in descending weight order to the
// least-loaded partition; then each person to the partition holding
// the plurality of their locations' assignments.
func Partition(visits []Visit, nNodes, nCPUPerNode int) (lidTable, pidTable PartitionTable, err error) {
	lidPids := make(map[int64]map[int64]struct{})
	pidLids := make(map[int64]map[int64]struct{})
	// pidLidOrder preserves first-seen order of each pid's locations,
	// since the plurality tie-break in spec section 4.4 is defined
	// over that order and Go map iteration is not deterministic.
	pidLidOrder := make(map[int64][]int64)
	for _, v := range visits {
		if lidPids[v.LID] == nil {
			lidPids[v.LID] = make(map[int64]struct{})
		}
		lidPids[v.LID][v.PID] = struct{}{}
		if pidLids[v.PID] == nil {
			pidLids[v.PID] = make(map[int64]struct{})
		}
		if _, seen := pidLids[v.PID][v.LID]; !seen {
			pidLidOrder[v.PID] = append(pidLidOrder[v.PID], v.LID)
		}
		pidLids[v.PID][v.LID] = struct{}{}
	}

	lids := sortedKeys(lidPids)
	pids := sortedKeys(pidLids)

	type weightedLID struct {
		lid    int64
		weight float64
	}
	weighted := make([]weightedLID, 0, len(lids))
	for _, lid := range lids {
		w := float64(len(lidPids[lid]))
		w = w * math.Log2(w+1.0)
		weighted = append(weighted, weightedLID{lid: lid, weight: w})
	}
	sort.SliceStable(weighted, func(i, j int) bool {
		return weighted[i].weight > weighted[j].weight
	})

	nParts := nNodes * nCPUPerNode
	h := make(partHeap, nParts)
	for p := 0; p < nParts; p++ {
		h[p] = partHeapItem{load: 0, part: p}
	}
	heap.Init(&h)

	lidPart := make(map[int64]int, len(lids))
	for _, wl := range weighted {
		item := heap.Pop(&h).(partHeapItem)
		lidPart[wl.lid] = item.part
		item.load += wl.weight
		heap.Push(&h, item)
	}

	lidRows := make([]PartitionEntry, 0, len(lids))
	for _, lid := range lids {
		part := lidPart[lid]
		lidRows = append(lidRows, PartitionEntry{ID: lid, Node: part / nCPUPerNode, CPU: part % nCPUPerNode})
	}

	pidRows := make([]PartitionEntry, 0, len(pids))
	for _, pid := range pids {
		counts := make(map[int]int)
		var firstSeen []int
		for _, lid := range pidLidOrder[pid] {
			part := lidPart[lid]
			if counts[part] == 0 {
				firstSeen = append(firstSeen, part)
			}
			counts[part]++
		}
		best := firstSeen[0]
		bestCount := counts[best]
		for _, part := range firstSeen[1:] {
			if counts[part] > bestCount {
				best = part
				bestCount = counts[part]
			}
		}
		pidRows = append(pidRows, PartitionEntry{ID: pid, Node: best / nCPUPerNode, CPU: best % nCPUPerNode})
	}

	lidTable = PartitionTable{NCPUPerNode: nCPUPerNode, Rows: lidRows}
	pidTable = PartitionTable{NCPUPerNode: nCPUPerNode, Rows: pidRows}
	return lidTable, pidTable, nil
}

func sortedKeys(m map[int64]map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
