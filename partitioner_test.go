package pansim

import (
	"reflect"
	"testing"
)

func sampleVisits() []Visit {
	return []Visit{
		{LID: 1, PID: 10, StartTime: 0, EndTime: 5},
		{LID: 1, PID: 11, StartTime: 0, EndTime: 5},
		{LID: 1, PID: 12, StartTime: 0, EndTime: 5},
		{LID: 2, PID: 11, StartTime: 6, EndTime: 10},
		{LID: 2, PID: 13, StartTime: 6, EndTime: 10},
		{LID: 3, PID: 12, StartTime: 11, EndTime: 15},
		{LID: 3, PID: 14, StartTime: 11, EndTime: 15},
	}
}

func TestPartitionCoversEveryLIDAndPID(t *testing.T) {
	visits := sampleVisits()
	lidTable, pidTable, err := Partition(visits, 2, 2)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	wantLIDs := map[int64]bool{1: true, 2: true, 3: true}
	gotLIDs := make(map[int64]bool)
	for _, r := range lidTable.Rows {
		gotLIDs[r.ID] = true
		if r.Node < 0 || r.Node >= 2 || r.CPU < 0 || r.CPU >= 2 {
			t.Errorf("lid %d assigned out-of-range partition node=%d cpu=%d", r.ID, r.Node, r.CPU)
		}
	}
	if !reflect.DeepEqual(wantLIDs, gotLIDs) {
		t.Errorf("lidTable covers %v, want %v", gotLIDs, wantLIDs)
	}

	wantPIDs := map[int64]bool{10: true, 11: true, 12: true, 13: true, 14: true}
	gotPIDs := make(map[int64]bool)
	for _, r := range pidTable.Rows {
		gotPIDs[r.ID] = true
	}
	if !reflect.DeepEqual(wantPIDs, gotPIDs) {
		t.Errorf("pidTable covers %v, want %v", gotPIDs, wantPIDs)
	}
}

func TestPartitionIsIdempotent(t *testing.T) {
	visits := sampleVisits()
	lid1, pid1, err := Partition(visits, 3, 2)
	if err != nil {
		t.Fatalf("Partition (first run): %v", err)
	}
	lid2, pid2, err := Partition(visits, 3, 2)
	if err != nil {
		t.Fatalf("Partition (second run): %v", err)
	}
	if !reflect.DeepEqual(lid1, lid2) {
		t.Errorf("lid partition table not idempotent:\n%+v\n%+v", lid1, lid2)
	}
	if !reflect.DeepEqual(pid1, pid2) {
		t.Errorf("pid partition table not idempotent:\n%+v\n%+v", pid1, pid2)
	}
}

func TestPartitionEntryRank(t *testing.T) {
	e := PartitionEntry{ID: 1, Node: 2, CPU: 3}
	if got := e.Rank(4); got != 11 {
		t.Errorf("Rank(4) = %d, want 11", got)
	}
}

func TestPartitionTableRankMap(t *testing.T) {
	table := PartitionTable{
		NCPUPerNode: 2,
		Rows: []PartitionEntry{
			{ID: 100, Node: 0, CPU: 0},
			{ID: 101, Node: 0, CPU: 1},
			{ID: 102, Node: 1, CPU: 0},
		},
	}
	ranks := table.RankMap()
	want := map[int64]int{100: 0, 101: 1, 102: 2}
	if !reflect.DeepEqual(ranks, want) {
		t.Errorf("RankMap() = %v, want %v", ranks, want)
	}
}

func TestPartitionSinglePartitionAssignsEverythingToZero(t *testing.T) {
	visits := sampleVisits()
	lidTable, pidTable, err := Partition(visits, 1, 1)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	for _, r := range lidTable.Rows {
		if r.Node != 0 || r.CPU != 0 {
			t.Errorf("lid %d assigned to node=%d cpu=%d, want (0,0) with a single partition", r.ID, r.Node, r.CPU)
		}
	}
	for _, r := range pidTable.Rows {
		if r.Node != 0 || r.CPU != 0 {
			t.Errorf("pid %d assigned to node=%d cpu=%d, want (0,0) with a single partition", r.ID, r.Node, r.CPU)
		}
	}
}
