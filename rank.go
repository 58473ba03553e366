package pansim

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Cluster wires every rank's channels together and drives the B->L->P->B
// tick cycle (spec section 4.5). A distsim run builds one Cluster with
// NumRanks = nNodes*nCPUPerNode; a simplesim run builds the degenerate
// NumRanks = 1 case and exercises the identical stage code, which is
// the "distributed equivalence" property spec section 8 tests directly.
type Cluster struct {
	NumRanks int
	Cfg      *Config
	Model    *DiseaseModel

	LIDRank      map[int64]int
	PIDProgRank  map[int64]int
	PIDBehavRank map[int64]int
	BehavRanks   []int

	visitBus        *Bus // BehaviorActor -> LocationActor
	stateToProgBus  *Bus // BehaviorActor -> ProgressionActor (current state)
	voutToProgBus   *Bus // LocationActor -> ProgressionActor
	stateToBehavBus *Bus // ProgressionActor -> BehaviorActor (new state)
	voutToBehavBus  *Bus // ProgressionActor -> BehaviorActor
	epicurveBus     *Bus // BehaviorActor -> MainActor (rank 0 only)

	Logger EpicurveLogger
}

const busBuffer = 8

// NewCluster builds the rank routing tables ConfigActor computes in the
// source implementation: which rank owns each location (for the
// location stage), which owns each person (for progression), and which
// hosts that person's behavior actor (every rank, unless
// Cfg.PerNodeBehavior routes every person on a node to that node's
// first CPU instead).
func NewCluster(cfg *Config, model *DiseaseModel, lidTable, pidTable PartitionTable, logger EpicurveLogger) *Cluster {
	nCPUPerNode := pidTable.NCPUPerNode
	nRanks := 0
	for _, r := range pidTable.Rows {
		if rank := r.Rank(nCPUPerNode); rank+1 > nRanks {
			nRanks = rank + 1
		}
	}
	for _, r := range lidTable.Rows {
		if rank := r.Rank(nCPUPerNode); rank+1 > nRanks {
			nRanks = rank + 1
		}
	}

	c := &Cluster{
		NumRanks:    nRanks,
		Cfg:         cfg,
		Model:       model,
		LIDRank:     lidTable.RankMap(),
		PIDProgRank: pidTable.RankMap(),
		Logger:      logger,
	}

	if cfg.PerNodeBehavior {
		seen := make(map[int]bool)
		for _, r := range pidTable.Rows {
			first := r.Node * nCPUPerNode
			if !seen[first] {
				seen[first] = true
				c.BehavRanks = append(c.BehavRanks, first)
			}
		}
		sort.Ints(c.BehavRanks)
		c.PIDBehavRank = make(map[int64]int, len(pidTable.Rows))
		for _, r := range pidTable.Rows {
			c.PIDBehavRank[r.ID] = r.Node * nCPUPerNode
		}
	} else {
		c.BehavRanks = make([]int, nRanks)
		for i := range c.BehavRanks {
			c.BehavRanks[i] = i
		}
		c.PIDBehavRank = c.PIDProgRank
	}

	c.visitBus = NewBus(nRanks, busBuffer)
	c.stateToProgBus = NewBus(nRanks, busBuffer)
	c.voutToProgBus = NewBus(nRanks, busBuffer)
	c.stateToBehavBus = NewBus(nRanks, busBuffer)
	c.voutToBehavBus = NewBus(nRanks, busBuffer)
	c.epicurveBus = NewBus(1, len(c.BehavRanks)+1)

	return c
}

func (c *Cluster) isBehavRank(rank int) bool {
	for _, r := range c.BehavRanks {
		if r == rank {
			return true
		}
	}
	return false
}

// scatterVisits splits f's rows by the destination rank each row's lid
// belongs to and sends one envelope per destination, including an
// explicitly empty one to every rank with no rows, so every
// destination's barrier always counts exactly nSources arrivals.
func scatterVisits(ctx context.Context, bus *Bus, f VisitFrame, rankOf map[int64]int, numRanks int) error {
	buckets := make([]VisitFrame, numRanks)
	for i := range buckets {
		buckets[i].AttrNames = f.AttrNames
	}
	for _, v := range f.Rows {
		r := rankOf[v.LID]
		buckets[r].Rows = append(buckets[r].Rows, v)
	}
	for r, bucket := range buckets {
		env, err := EncodeVisitFrame(bucket)
		if err != nil {
			return err
		}
		if err := bus.Send(ctx, r, env); err != nil {
			return err
		}
	}
	return nil
}

func scatterVisitOutputs(ctx context.Context, bus *Bus, f VisitOutputFrame, rankOf map[int64]int, ranks []int) error {
	buckets := make(map[int]*VisitOutputFrame, len(ranks))
	for _, r := range ranks {
		buckets[r] = &VisitOutputFrame{AttrNames: f.AttrNames}
	}
	for _, r := range f.Rows {
		rank := rankOf[r.PID]
		b, ok := buckets[rank]
		if !ok {
			b = &VisitOutputFrame{AttrNames: f.AttrNames}
			buckets[rank] = b
		}
		b.Rows = append(b.Rows, r)
	}
	for rank, bucket := range buckets {
		env, err := EncodeVisitOutputFrame(*bucket)
		if err != nil {
			return err
		}
		if err := bus.Send(ctx, rank, env); err != nil {
			return err
		}
	}
	return nil
}

// allRanks enumerates every rank 0..n-1. The destination-enumeration
// argument to scatterStates must be every rank that runs a
// ProgressionActor -- all of them -- not just the ranks that happen to
// host a BehaviorActor, else a non-behavior-hosting rank that receives
// zero pids from a given source never gets the empty envelope its
// CollectBarrier is waiting to count.
func allRanks(n int) []int {
	ranks := make([]int, n)
	for i := range ranks {
		ranks[i] = i
	}
	return ranks
}

func scatterStates(ctx context.Context, bus *Bus, f StateFrame, rankOf map[int64]int, ranks []int) error {
	buckets := make(map[int]*StateFrame, len(ranks))
	for _, r := range ranks {
		buckets[r] = &StateFrame{}
	}
	for _, s := range f.Rows {
		rank := rankOf[s.PID]
		b, ok := buckets[rank]
		if !ok {
			b = &StateFrame{}
			buckets[rank] = b
		}
		b.Rows = append(b.Rows, s)
	}
	for rank, bucket := range buckets {
		env, err := EncodeStateFrame(*bucket)
		if err != nil {
			return err
		}
		if err := bus.Send(ctx, rank, env); err != nil {
			return err
		}
	}
	return nil
}

// locationStage merges this rank's visit shard, runs the contact kernel
// once per location, and scatters the resulting visit outputs onward to
// the ranks owning each touched person.
func (c *Cluster) locationStage(ctx context.Context, myRank int, envs []*Envelope) error {
	var merged VisitFrame
	for _, env := range envs {
		f, err := DecodeVisitFrame(env)
		if err != nil {
			return err
		}
		if merged.AttrNames == nil {
			merged.AttrNames = f.AttrNames
		}
		merged.Rows = append(merged.Rows, f.Rows...)
	}

	var outRows []VisitOutput
	for _, visits := range merged.GroupByLID() {
		out := c.Model.ComputeVisitOutput(visits, merged.AttrNames)
		outRows = append(outRows, out.Rows...)
	}
	outFrame := VisitOutputFrame{AttrNames: merged.AttrNames, Rows: outRows}

	return scatterVisitOutputs(ctx, c.voutToProgBus, outFrame, c.PIDProgRank, allRanks(c.NumRanks))
}

// progressionStage merges the current-state shard from the behavior
// ranks and the visit outputs from every location rank, runs the
// progression kernel per person, and scatters both the new state and
// the visit outputs onward to the rank hosting each person's behavior
// actor.
func (c *Cluster) progressionStage(ctx context.Context, myRank int, stateEnvs, voutEnvs []*Envelope) error {
	var state StateFrame
	for _, env := range stateEnvs {
		f, err := DecodeStateFrame(env)
		if err != nil {
			return err
		}
		state.Rows = append(state.Rows, f.Rows...)
	}

	var vout VisitOutputFrame
	for _, env := range voutEnvs {
		f, err := DecodeVisitOutputFrame(env)
		if err != nil {
			return err
		}
		if vout.AttrNames == nil {
			vout.AttrNames = f.AttrNames
		}
		vout.Rows = append(vout.Rows, f.Rows...)
	}

	byPID := state.IndexByPID()
	voutByPID := vout.GroupByPID()

	newStates := make([]PersonState, 0, len(state.Rows))
	for pid, s := range byPID {
		newStates = append(newStates, ComputeProgressionOutput(s, voutByPID[pid], c.Cfg.TickTime, c.Model))
	}
	newStateFrame := StateFrame{Rows: newStates}

	if err := scatterStates(ctx, c.stateToBehavBus, newStateFrame, c.PIDBehavRank, c.BehavRanks); err != nil {
		return err
	}
	return scatterVisitOutputs(ctx, c.voutToBehavBus, vout, c.PIDBehavRank, c.BehavRanks)
}

// behaviorStage merges the new-state and visit-output shards a behavior
// rank owns, runs the pluggable behavior model, reports this rank's
// contribution to the tick's epicurve row to the master rank, and
// scatters the next tick's visit schedule and state shard onward.
func (c *Cluster) behaviorStage(ctx context.Context, myRank int, model BehaviorModel, stateEnvs, voutEnvs []*Envelope) error {
	var state StateFrame
	for _, env := range stateEnvs {
		f, err := DecodeStateFrame(env)
		if err != nil {
			return err
		}
		state.Rows = append(state.Rows, f.Rows...)
	}

	var vout VisitOutputFrame
	for _, env := range voutEnvs {
		f, err := DecodeVisitOutputFrame(env)
		if err != nil {
			return err
		}
		if vout.AttrNames == nil {
			vout.AttrNames = f.AttrNames
		}
		vout.Rows = append(vout.Rows, f.Rows...)
	}

	nextState, nextVisit, err := model.RunBehaviorModel(state, vout)
	if err != nil {
		return err
	}

	epiRow := epicurveRow(state, c.Model.NStates)
	epiEnv, err := encodeEnvelope("epirow", epiRow)
	if err != nil {
		return err
	}
	if err := c.epicurveBus.Send(ctx, 0, epiEnv); err != nil {
		return err
	}

	if err := scatterVisits(ctx, c.visitBus, nextVisit, c.LIDRank, c.NumRanks); err != nil {
		return err
	}
	return scatterStates(ctx, c.stateToProgBus, nextState, c.PIDProgRank, allRanks(c.NumRanks))
}

// epicurveRow histograms a state shard's current_state column into a
// fixed-width row, one count per disease state.
func epicurveRow(state StateFrame, nStates int) []int64 {
	row := make([]int64, nStates)
	for _, s := range state.Rows {
		row[s.CurrentState]++
	}
	return row
}

// runRank drives one rank's goroutine for the lifetime of a simulation:
// receive this tick's visits, run the location stage, receive this
// tick's state+visit-outputs, run the progression stage, and, if this
// rank hosts a behavior actor, receive the gathered state+visit-outputs
// and run the behavior stage -- repeating for numTicks ticks.
func (c *Cluster) runRank(ctx context.Context, rank int, behavior BehaviorModel, numTicks int) error {
	isBehav := c.isBehavRank(rank)
	for tick := 0; tick < numTicks; tick++ {
		tickCtx := ctx
		var cancel context.CancelFunc
		if c.Cfg.TickTimeout > 0 {
			tickCtx, cancel = context.WithTimeout(ctx, c.Cfg.TickTimeout)
		}
		if err := c.runTick(tickCtx, rank, isBehav, behavior); err != nil {
			if cancel != nil {
				cancel()
			}
			return err
		}
		if cancel != nil {
			cancel()
		}
	}
	return nil
}

// runTick runs one rank's stages for a single tick, under ctx (which
// may carry Config.TickTimeout as a deadline).
func (c *Cluster) runTick(ctx context.Context, rank int, isBehav bool, behavior BehaviorModel) error {
	visitEnvs, err := CollectBarrier(ctx, c.visitBus.Inbox(rank), len(c.BehavRanks))
	if err != nil {
		return err
	}
	if err := c.locationStage(ctx, rank, visitEnvs); err != nil {
		return err
	}

	stateEnvs, err := CollectBarrier(ctx, c.stateToProgBus.Inbox(rank), len(c.BehavRanks))
	if err != nil {
		return err
	}
	voutEnvs, err := CollectBarrier(ctx, c.voutToProgBus.Inbox(rank), c.NumRanks)
	if err != nil {
		return err
	}
	if err := c.progressionStage(ctx, rank, stateEnvs, voutEnvs); err != nil {
		return err
	}

	if isBehav {
		behavStateEnvs, err := CollectBarrier(ctx, c.stateToBehavBus.Inbox(rank), c.NumRanks)
		if err != nil {
			return err
		}
		behavVoutEnvs, err := CollectBarrier(ctx, c.voutToBehavBus.Inbox(rank), c.NumRanks)
		if err != nil {
			return err
		}
		if err := c.behaviorStage(ctx, rank, behavior, behavStateEnvs, behavVoutEnvs); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every rank's goroutine under an errgroup, seeds tick 0 by
// scattering the initial visit and state frames as if the behavior
// ranks of a prior tick had produced them (one envelope per behavior
// rank to every destination), then collects and logs one epicurve row per
// tick until numTicks complete. The first rank error cancels ctx and
// unwinds every other rank, matching the fatal/no-retry contract spec
// section 7 requires.
func (c *Cluster) Run(ctx context.Context, initialVisit VisitFrame, initialState StateFrame, behaviors map[int]BehaviorModel, numTicks int) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for rank := 0; rank < c.NumRanks; rank++ {
		rank := rank
		group.Go(func() error {
			return c.runRank(groupCtx, rank, behaviors[rank], numTicks)
		})
	}

	// Every rank's tick-0 barriers count one envelope per behavior rank:
	// the first slot carries the whole initial frames, the rest are empty.
	for i := range c.BehavRanks {
		visit, state := VisitFrame{AttrNames: initialVisit.AttrNames}, StateFrame{}
		if i == 0 {
			visit, state = initialVisit, initialState
		}
		if err := scatterVisits(groupCtx, c.visitBus, visit, c.LIDRank, c.NumRanks); err != nil {
			return err
		}
		if err := scatterStates(groupCtx, c.stateToProgBus, state, c.PIDProgRank, allRanks(c.NumRanks)); err != nil {
			return err
		}
	}

	group.Go(func() error {
		return c.collectEpicurve(groupCtx, numTicks)
	})

	return group.Wait()
}

// collectEpicurve runs on the master rank's side of the cluster: for
// each tick, gather one epicurve row contribution from every behavior
// rank, sum them, and hand the combined row to the logger.
func (c *Cluster) collectEpicurve(ctx context.Context, numTicks int) error {
	if c.Logger == nil {
		return nil
	}
	inbox := c.epicurveBus.Inbox(0)
	for tick := 0; tick < numTicks; tick++ {
		envs, err := CollectBarrier(ctx, inbox, len(c.BehavRanks))
		if err != nil {
			return err
		}
		var combined []int64
		for _, env := range envs {
			var row []int64
			if err := decodeEnvelope(env, "epirow", &row); err != nil {
				return err
			}
			if combined == nil {
				combined = make([]int64, len(row))
			}
			for i, v := range row {
				combined[i] += v
			}
		}
		if err := c.Logger.LogTick(tick, combined); err != nil {
			return err
		}
	}
	return c.Logger.Close()
}
