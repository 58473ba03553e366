package pansim

import "context"

// RunSimplesim drives the entire tick loop on a single in-process rank,
// the degenerate NumRanks=1 case of Cluster.Run. It exercises exactly
// the same stage code distsim runs on every rank, which is what makes
// the distributed-equivalence property (spec section 8) meaningful to
// test: the two code paths are, in fact, the same path.
func RunSimplesim(ctx context.Context, cfg *Config, model *DiseaseModel) error {
	startState, err := LoadStartStateFrame(cfg.StartStateFile, cfg.Seed)
	if err != nil {
		return err
	}

	visits, err := loadAllVisits(cfg)
	if err != nil {
		return err
	}
	lidTable, pidTable, err := Partition(visits, 1, 1)
	if err != nil {
		return err
	}

	logger, err := NewEpicurveLogger(cfg, model.States)
	if err != nil {
		return err
	}

	behavior, initialVisit, err := newBehaviorModel(ctx, cfg, model, startState, nil)
	if err != nil {
		return err
	}

	cluster := NewCluster(cfg, model, lidTable, pidTable, logger)

	return cluster.Run(ctx, initialVisit, startState, map[int]BehaviorModel{0: behavior}, int(cfg.NumTicks))
}

// RunDistsim drives the tick loop across nNodes*nCPUPerNode goroutine
// ranks, partitioning the visit files first if no partition tables were
// supplied in cfg.
func RunDistsim(ctx context.Context, cfg *Config, model *DiseaseModel, nNodes, nCPUPerNode int) error {
	lidTable, pidTable, err := loadOrBuildPartition(cfg, nNodes, nCPUPerNode)
	if err != nil {
		return err
	}

	startState, err := LoadStartStateFrame(cfg.StartStateFile, cfg.Seed)
	if err != nil {
		return err
	}

	logger, err := NewEpicurveLogger(cfg, model.States)
	if err != nil {
		return err
	}

	cluster := NewCluster(cfg, model, lidTable, pidTable, logger)

	behaviors := make(map[int]BehaviorModel, len(cluster.BehavRanks))
	var initialVisit VisitFrame
	for i, rank := range cluster.BehavRanks {
		pids := ownedPIDs(cluster.PIDBehavRank, rank)
		shard := filterStateByPID(startState, pids)
		b, v, err := newBehaviorModel(ctx, cfg, model, shard, pids)
		if err != nil {
			return err
		}
		behaviors[rank] = b

		if i == 0 {
			initialVisit = v
		} else {
			initialVisit.Rows = append(initialVisit.Rows, v.Rows...)
		}
	}

	return cluster.Run(ctx, initialVisit, startState, behaviors, int(cfg.NumTicks))
}

// newBehaviorModel builds the behavior actor a rank hosts -- a
// RemoteBehaviorModel dialed at Config.BehaviorServiceURL when set, a
// ReferenceBehaviorModel otherwise -- and computes the tick-0 visit
// frame it produces, uniformly across either implementation.
func newBehaviorModel(ctx context.Context, cfg *Config, model *DiseaseModel, shard StateFrame, pids map[int64]bool) (BehaviorModel, VisitFrame, error) {
	if cfg.BehaviorServiceURL != "" {
		remote, err := DialRemoteBehaviorModel(ctx, cfg.BehaviorServiceURL)
		if err != nil {
			return nil, VisitFrame{}, err
		}
		visit, err := remote.InitialVisitFrame(shard)
		if err != nil {
			return nil, VisitFrame{}, err
		}
		return remote, visit, nil
	}

	b, err := NewReferenceBehaviorModel(cfg, model, shard, pids)
	if err != nil {
		return nil, VisitFrame{}, err
	}
	return b, b.InitialVisitFrame(shard), nil
}

func loadOrBuildPartition(cfg *Config, nNodes, nCPUPerNode int) (lidTable, pidTable PartitionTable, err error) {
	if cfg.LIDPartitionFile != "" && cfg.PIDPartitionFile != "" {
		lidTable, err = LoadPartitionTable(cfg.LIDPartitionFile, "lid")
		if err != nil {
			return
		}
		pidTable, err = LoadPartitionTable(cfg.PIDPartitionFile, "pid")
		return
	}

	visits, err := loadAllVisits(cfg)
	if err != nil {
		return PartitionTable{}, PartitionTable{}, err
	}
	return Partition(visits, nNodes, nCPUPerNode)
}

func loadAllVisits(cfg *Config) ([]Visit, error) {
	var all []Visit
	for _, path := range cfg.VisitFiles {
		f, err := LoadVisitScheduleFrame(path, cfg.AttrNames)
		if err != nil {
			return nil, err
		}
		all = append(all, f.Rows...)
	}
	return all, nil
}

func ownedPIDs(rankOf map[int64]int, rank int) map[int64]bool {
	out := make(map[int64]bool)
	for pid, r := range rankOf {
		if r == rank {
			out[pid] = true
		}
	}
	return out
}

func filterStateByPID(f StateFrame, pids map[int64]bool) StateFrame {
	out := StateFrame{}
	for _, r := range f.Rows {
		if pids[r.PID] {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
