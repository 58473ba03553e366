package pansim

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadStartStateFrameSeedsSentinelsAndDerivesPerPersonSeeds(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "start_state.csv", "pid,group,start_state\n1,0,0\n2,1,2\n")

	frame, err := LoadStartStateFrame(path, 7)
	if err != nil {
		t.Fatalf("LoadStartStateFrame: %v", err)
	}
	if len(frame.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(frame.Rows))
	}
	for i, row := range frame.Rows {
		if row.NextState != NullState {
			t.Errorf("row %d: NextState = %d, want NullState", i, row.NextState)
		}
		if row.DwellTime != NullDwellTime {
			t.Errorf("row %d: DwellTime = %d, want NullDwellTime", i, row.DwellTime)
		}
	}
	if frame.Rows[0].PID != 1 || frame.Rows[0].Group != 0 || frame.Rows[0].CurrentState != 0 {
		t.Errorf("row 0 = %+v, unexpected", frame.Rows[0])
	}
	if frame.Rows[1].PID != 2 || frame.Rows[1].Group != 1 || frame.Rows[1].CurrentState != 2 {
		t.Errorf("row 1 = %+v, unexpected", frame.Rows[1])
	}
	if frame.Rows[0].Seed == frame.Rows[1].Seed {
		t.Error("expected distinct per-person seeds drawn in file order")
	}

	again, err := LoadStartStateFrame(path, 7)
	if err != nil {
		t.Fatalf("LoadStartStateFrame (second load): %v", err)
	}
	if frame.Rows[0].Seed != again.Rows[0].Seed || frame.Rows[1].Seed != again.Rows[1].Seed {
		t.Error("expected identical per-person seeds for the same master seed across loads")
	}
}

func TestLoadStartStateFrameRejectsMissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "start_state.csv", "pid,start_state\n1,0\n")
	if _, err := LoadStartStateFrame(path, 1); err == nil {
		t.Fatal("expected an error for a start state file missing the group column")
	}
}

func TestLoadVisitScheduleFrameParsesColumnsAndAttrs(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "visits.csv", "lid,pid,start_time,end_time,masked\n1,10,0,5,1\n1,11,2,8,0\n")

	frame, err := LoadVisitScheduleFrame(path, []string{"masked"})
	if err != nil {
		t.Fatalf("LoadVisitScheduleFrame: %v", err)
	}
	if len(frame.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(frame.Rows))
	}
	if frame.AttrNames[0] != "masked" {
		t.Errorf("AttrNames = %v, want [masked]", frame.AttrNames)
	}
	v0 := frame.Rows[0]
	if v0.LID != 1 || v0.PID != 10 || v0.StartTime != 0 || v0.EndTime != 5 {
		t.Errorf("row 0 = %+v, unexpected", v0)
	}
	if len(v0.Attrs) != 1 || v0.Attrs[0] != 1 {
		t.Errorf("row 0 attrs = %v, want [1]", v0.Attrs)
	}
	if frame.Rows[1].Attrs[0] != 0 {
		t.Errorf("row 1 attrs = %v, want [0]", frame.Rows[1].Attrs)
	}
}

func TestLoadVisitScheduleFrameDefaultsMissingAttrColumnToZero(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "visits.csv", "lid,pid,start_time,end_time\n1,10,0,5\n")

	frame, err := LoadVisitScheduleFrame(path, []string{"masked"})
	if err != nil {
		t.Fatalf("LoadVisitScheduleFrame: %v", err)
	}
	if len(frame.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(frame.Rows))
	}
	if frame.Rows[0].Attrs[0] != 0 {
		t.Errorf("Attrs[0] = %d, want 0 for an absent attribute column", frame.Rows[0].Attrs[0])
	}
}

func TestLoadVisitScheduleFrameRejectsInvertedInterval(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "visits.csv", "lid,pid,start_time,end_time\n1,10,5,0\n")

	if _, err := LoadVisitScheduleFrame(path, nil); err == nil {
		t.Fatal("expected an error for start_time > end_time")
	}
}

func TestPartitionTableRoundTripsThroughWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partition.csv")

	table := PartitionTable{
		NCPUPerNode: 2,
		Rows: []PartitionEntry{
			{ID: 1, Node: 0, CPU: 0},
			{ID: 2, Node: 0, CPU: 1},
			{ID: 3, Node: 1, CPU: 0},
		},
	}
	if err := WritePartitionTable(path, "lid", table); err != nil {
		t.Fatalf("WritePartitionTable: %v", err)
	}

	got, err := LoadPartitionTable(path, "lid")
	if err != nil {
		t.Fatalf("LoadPartitionTable: %v", err)
	}
	if got.NCPUPerNode != table.NCPUPerNode {
		t.Errorf("NCPUPerNode = %d, want %d", got.NCPUPerNode, table.NCPUPerNode)
	}
	if len(got.Rows) != len(table.Rows) {
		t.Fatalf("got %d rows, want %d", len(got.Rows), len(table.Rows))
	}
	for i, want := range table.Rows {
		if got.Rows[i] != want {
			t.Errorf("row %d = %+v, want %+v", i, got.Rows[i], want)
		}
	}
}

func TestLoadPartitionTableRejectsMissingIDColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "partition.csv", "node,cpu\n0,0\n")
	if _, err := LoadPartitionTable(path, "pid"); err == nil {
		t.Fatal("expected an error for a partition file missing the id column")
	}
}

func TestReadCSVRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "empty.csv", "")
	if _, _, err := readCSV(path); err == nil {
		t.Fatal("expected an error reading a file with no header row")
	}
}
