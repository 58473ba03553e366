package pansim

import (
	"encoding/csv"
	"math/rand"
	"os"
	"strconv"
)

// LoadStartStateFrame reads the start-state CSV (columns pid, group,
// start_state), renaming start_state to current_state and seeding
// next_state/dwell_time/seed exactly as spec section 6 describes: the
// loader augments each row with next_state=-1, dwell_time=-1, and a
// seed drawn from the master seed in file order.
func LoadStartStateFrame(path string, masterSeed int64) (StateFrame, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return StateFrame{}, err
	}
	pidCol, err := requireColumn(header, "pid")
	if err != nil {
		return StateFrame{}, err
	}
	groupCol, err := requireColumn(header, "group")
	if err != nil {
		return StateFrame{}, err
	}
	stateCol, err := requireColumn(header, "start_state")
	if err != nil {
		return StateFrame{}, err
	}

	rng := rand.New(rand.NewSource(masterSeed))

	rows := make([]PersonState, 0, len(records))
	for _, rec := range records {
		pid, err := strconv.ParseInt(rec[pidCol], 10, 64)
		if err != nil {
			return StateFrame{}, Wrap(InvalidInput, err, "parsing pid in start state file")
		}
		group, err := strconv.ParseInt(rec[groupCol], 10, 8)
		if err != nil {
			return StateFrame{}, Wrap(InvalidInput, err, "parsing group in start state file")
		}
		state, err := strconv.ParseInt(rec[stateCol], 10, 8)
		if err != nil {
			return StateFrame{}, Wrap(InvalidInput, err, "parsing start_state in start state file")
		}
		rows = append(rows, PersonState{
			PID:          pid,
			Group:        int8(group),
			CurrentState: int8(state),
			NextState:    NullState,
			DwellTime:    NullDwellTime,
			Seed:         int64(rng.Uint64()),
		})
	}
	return StateFrame{Rows: rows}, nil
}

// LoadVisitScheduleFrame reads a per-tick visit schedule CSV (columns
// lid, pid, start_time, end_time, plus any configured visual
// attributes) and fills in state/group/behavior as 0; the behavior
// model is responsible for overwriting state/group from the current
// person-state frame before the visits are scattered to location
// actors, matching setup_visit_df in the reference behavior module.
func LoadVisitScheduleFrame(path string, attrNames []string) (VisitFrame, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return VisitFrame{}, err
	}
	lidCol, err := requireColumn(header, "lid")
	if err != nil {
		return VisitFrame{}, err
	}
	pidCol, err := requireColumn(header, "pid")
	if err != nil {
		return VisitFrame{}, err
	}
	startCol, err := requireColumn(header, "start_time")
	if err != nil {
		return VisitFrame{}, err
	}
	endCol, err := requireColumn(header, "end_time")
	if err != nil {
		return VisitFrame{}, err
	}
	attrCols := make([]int, len(attrNames))
	for i, name := range attrNames {
		col, ok := findColumn(header, name)
		attrCols[i] = col
		_ = ok // missing attribute columns default to 0, filled below
	}

	rows := make([]Visit, 0, len(records))
	for _, rec := range records {
		lid, err := strconv.ParseInt(rec[lidCol], 10, 64)
		if err != nil {
			return VisitFrame{}, Wrap(InvalidInput, err, "parsing lid in visit file")
		}
		pid, err := strconv.ParseInt(rec[pidCol], 10, 64)
		if err != nil {
			return VisitFrame{}, Wrap(InvalidInput, err, "parsing pid in visit file")
		}
		start, err := strconv.ParseInt(rec[startCol], 10, 32)
		if err != nil {
			return VisitFrame{}, Wrap(InvalidInput, err, "parsing start_time in visit file")
		}
		end, err := strconv.ParseInt(rec[endCol], 10, 32)
		if err != nil {
			return VisitFrame{}, Wrap(InvalidInput, err, "parsing end_time in visit file")
		}
		attrs := make([]int8, len(attrNames))
		for i, col := range attrCols {
			if col < 0 {
				continue
			}
			v, err := strconv.ParseInt(rec[col], 10, 8)
			if err != nil {
				return VisitFrame{}, Wrap(InvalidInput, err, "parsing visual attribute in visit file")
			}
			attrs[i] = int8(v)
		}
		v := Visit{
			LID:       lid,
			PID:       pid,
			StartTime: int32(start),
			EndTime:   int32(end),
			Attrs:     attrs,
		}
		if err := v.Validate(); err != nil {
			return VisitFrame{}, err
		}
		rows = append(rows, v)
	}
	return VisitFrame{AttrNames: attrNames, Rows: rows}, nil
}

// LoadPartitionTable reads a partition CSV (columns id-like column
// name, node, cpu) where idColumn is "lid" or "pid".
func LoadPartitionTable(path, idColumn string) (PartitionTable, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return PartitionTable{}, err
	}
	idCol, err := requireColumn(header, idColumn)
	if err != nil {
		return PartitionTable{}, err
	}
	nodeCol, err := requireColumn(header, "node")
	if err != nil {
		return PartitionTable{}, err
	}
	cpuCol, err := requireColumn(header, "cpu")
	if err != nil {
		return PartitionTable{}, err
	}

	maxCPU := 0
	rows := make([]PartitionEntry, 0, len(records))
	for _, rec := range records {
		id, err := strconv.ParseInt(rec[idCol], 10, 64)
		if err != nil {
			return PartitionTable{}, Wrap(InvalidInput, err, "parsing id in partition file")
		}
		node, err := strconv.Atoi(rec[nodeCol])
		if err != nil {
			return PartitionTable{}, Wrap(InvalidInput, err, "parsing node in partition file")
		}
		cpu, err := strconv.Atoi(rec[cpuCol])
		if err != nil {
			return PartitionTable{}, Wrap(InvalidInput, err, "parsing cpu in partition file")
		}
		if cpu > maxCPU {
			maxCPU = cpu
		}
		rows = append(rows, PartitionEntry{ID: id, Node: node, CPU: cpu})
	}
	return PartitionTable{NCPUPerNode: maxCPU + 1, Rows: rows}, nil
}

// WritePartitionTable writes a partition table back out as CSV, used
// by the `partition` CLI command.
func WritePartitionTable(path, idColumn string, t PartitionTable) error {
	f, err := os.Create(path)
	if err != nil {
		return Wrap(InvalidInput, err, "creating partition file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{idColumn, "node", "cpu"}); err != nil {
		return Wrap(InvalidInput, err, "writing partition header")
	}
	for _, r := range t.Rows {
		row := []string{strconv.FormatInt(r.ID, 10), strconv.Itoa(r.Node), strconv.Itoa(r.CPU)}
		if err := w.Write(row); err != nil {
			return Wrap(InvalidInput, err, "writing partition row")
		}
	}
	w.Flush()
	return w.Error()
}

func readCSV(path string) (records [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, Wrapf(InvalidInput, err, "opening %q", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, Wrapf(InvalidInput, err, "reading %q", path)
	}
	if len(all) == 0 {
		return nil, nil, Newf(InvalidInput, "%q has no header row", path)
	}
	return all[1:], all[0], nil
}

func findColumn(header []string, name string) (int, bool) {
	for i, h := range header {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

func requireColumn(header []string, name string) (int, error) {
	col, ok := findColumn(header, name)
	if !ok {
		return -1, Newf(InvalidInput, "missing required column %q", name)
	}
	return col, nil
}
