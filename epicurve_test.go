package pansim

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestCSVEpicurveLoggerWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epicurve.csv")

	logger, err := NewCSVEpicurveLogger(path, []string{"S", "I", "R"})
	if err != nil {
		t.Fatalf("NewCSVEpicurveLogger: %v", err)
	}
	if err := logger.LogTick(0, []int64{3, 1, 0}); err != nil {
		t.Fatalf("LogTick(0): %v", err)
	}
	if err := logger.LogTick(1, []int64{2, 2, 0}); err != nil {
		t.Fatalf("LogTick(1): %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 rows)", len(lines))
	}
	if lines[0] != "tick,S,I,R" {
		t.Errorf("header = %q, want %q", lines[0], "tick,S,I,R")
	}
	if lines[1] != "0,3,1,0" {
		t.Errorf("row 0 = %q, want %q", lines[1], "0,3,1,0")
	}
	if lines[2] != "1,2,2,0" {
		t.Errorf("row 1 = %q, want %q", lines[2], "1,2,2,0")
	}
}

func TestSQLiteEpicurveLoggerWritesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epicurve.db")

	logger, err := NewSQLiteEpicurveLogger(path, []string{"S", "I", "R"})
	if err != nil {
		t.Fatalf("NewSQLiteEpicurveLogger: %v", err)
	}
	if err := logger.LogTick(0, []int64{3, 1, 0}); err != nil {
		t.Fatalf("LogTick(0): %v", err)
	}
	if err := logger.LogTick(1, []int64{2, 2, 0}); err != nil {
		t.Fatalf("LogTick(1): %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`select tick, "S", "I", "R" from epicurve order by tick`)
	if err != nil {
		t.Fatalf("querying epicurve table: %v", err)
	}
	defer rows.Close()

	var got [][4]int64
	for rows.Next() {
		var tick, s, i, r int64
		if err := rows.Scan(&tick, &s, &i, &r); err != nil {
			t.Fatalf("scanning row: %v", err)
		}
		got = append(got, [4]int64{tick, s, i, r})
	}
	want := [][4]int64{{0, 3, 1, 0}, {1, 2, 2, 0}}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Errorf("row %d = %v, want %v", idx, got[idx], want[idx])
		}
	}
}

func TestNewEpicurveLoggerDefaultsToCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	cfg := &Config{OutputFile: path}

	logger, err := NewEpicurveLogger(cfg, []string{"S", "I"})
	if err != nil {
		t.Fatalf("NewEpicurveLogger: %v", err)
	}
	defer logger.Close()
	if _, ok := logger.(*CSVEpicurveLogger); !ok {
		t.Errorf("NewEpicurveLogger with no kind set returned %T, want *CSVEpicurveLogger", logger)
	}
}

func TestNewEpicurveLoggerRejectsUnknownKind(t *testing.T) {
	cfg := &Config{EpicurveLoggerKind: "carrier-pigeon"}
	if _, err := NewEpicurveLogger(cfg, []string{"S"}); err == nil {
		t.Fatal("expected an error for an unknown epicurve logger kind")
	}
}
