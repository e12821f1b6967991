package cpmp

import (
	"context"
	"time"

	"github.com/tanaka-lab/cpmp/pkg/collections"
	"github.com/tanaka-lab/cpmp/pkg/utils"
)

// Status reports how a Solve call ended.
type Status int

const (
	// StatusOptimal means the search proved the returned moves minimal.
	StatusOptimal Status = iota
	// StatusTimeLimit means the deadline elapsed first; the returned moves
	// are the best incumbent (possibly none).
	StatusTimeLimit
	// StatusInfeasible means no solution exists within the relocation
	// horizon: neither the heuristic nor the exhausted search ever sorted
	// the yard.
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusTimeLimit:
		return "time_limit"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// DominanceFamily selects which move-elimination rules run during child
// generation. Both families keep at least one optimal sequence alive; they
// differ in how aggressively symmetric orderings are cut.
type DominanceFamily int

const (
	// DominanceIndexSweep is the default: reversal and transitivity rules
	// plus the source-index sweep over commuting move windows, swapped for
	// the equal-priority permutation rules on duplicate instances.
	DominanceIndexSweep DominanceFamily = iota

	// DominanceType1 replaces the sweep with the reversible-source table:
	// the most recent moves whose source still sits untouched anchor the
	// commuting-order canonicalization.
	DominanceType1

	// DominanceNone disables everything, for cross-checking that pruning
	// never changes the optimum.
	DominanceNone
)

// Result is the outcome of a Solve call.
type Result struct {
	Moves        []Move
	Status       Status
	NodesVisited int64
	Elapsed      time.Duration
}

// SearchConfig controls the branch-and-bound search. The zero value of
// every field selects the reference defaults except the sizing knobs,
// which NewSearcher derives from the instance when left at 0; use
// DefaultSearchConfig for the explicit reference numbers.
type SearchConfig struct {
	// PollInterval is how many node visits pass between deadline checks.
	PollInterval int64
	// HeuristicMoves caps how many relocations the greedy seed may use.
	HeuristicMoves int
	// MaxRelocation caps the search horizon; instances needing more moves
	// are reported infeasible.
	MaxRelocation int

	BoundEngine BoundEngine
	Dominance   DominanceFamily

	// PureBranchAndBound replaces the outer iterative-deepening loop with
	// a single depth-first pass that tightens the incumbent as it goes.
	// Deepening is the default: re-searching shallow frontiers is cheaper
	// than the weaker pruning a loose ceiling affords.
	PureBranchAndBound bool

	// DisableNodeHeuristic turns off the greedy completion probe at every
	// generated child, leaving only the root seed.
	DisableNodeHeuristic bool

	// Logger receives the diagnostic stream (bounds, incumbents,
	// deepening steps) at Debug level. Nil discards it.
	Logger utils.Logger
}

// DefaultSearchConfig returns the configuration the reference solver uses
// out of the box.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		PollInterval:   200000,
		HeuristicMoves: 200,
		MaxRelocation:  200,
	}
}

// Searcher runs the branch-and-bound search for one Problem. A Searcher
// holds no mutable state shared across Solve calls, so multiple goroutines
// may each own one for the same Problem and call Solve concurrently.
type Searcher struct {
	problem *Problem
	config  SearchConfig
	clock   utils.Clock
}

// NewSearcher builds a Searcher for problem using config. clock lets
// callers substitute utils.NewCPUClock() (the default, matching the
// reference solver's getrusage-based budget), utils.NewRealClock(), or a
// utils.MockClock in tests.
func NewSearcher(problem *Problem, config SearchConfig, clock utils.Clock) *Searcher {
	if clock == nil {
		clock = utils.NewCPUClock()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 200000
	}
	if config.MaxRelocation <= 0 {
		config.MaxRelocation = problem.maxRelocation()
	}
	if config.HeuristicMoves <= 0 {
		config.HeuristicMoves = config.MaxRelocation
	}
	if config.Logger == nil {
		config.Logger = &utils.NullLogger{}
	}
	return &Searcher{problem: problem, config: config, clock: clock}
}

// childArenaPool recycles the per-depth child arrays across Solve calls.
// One solve is allocation-free after alloc either way; the pool matters to
// batch and server workloads, where thousands of instances of similar
// dimensions are solved back to back on the same process.
var childArenaPool = collections.NewSlicePool[childNode](64)

type searchStatus int

const (
	statusFound searchStatus = iota
	statusExhausted
	statusTimeLimit
)

// childNode is one admissible relocation out of the current node, with the
// keys the best-first ordering sorts on.
type childNode struct {
	move     Move
	lb       int
	mis      int
	priority int
	cost     int
}

// searchRun owns the arenas for one Solve invocation: the mutable state,
// one bound state per depth plus the sibling-shared scratch slots, the
// per-depth child arrays, and the incumbent.
type searchRun struct {
	problem *Problem
	cfg     SearchConfig
	clock   utils.Clock
	logger  utils.Logger
	ctx     context.Context

	deadline    time.Time
	hasDeadline bool

	state *State
	heur  *Heuristic

	nodes   int64
	cub     int
	pure    bool
	bestLen int
	best    []Move

	path          []Move
	movedPriority []int

	bounds       []*BoundState
	srcScratch   []*BoundState
	childScratch []*BoundState
	children     [][]childNode
	suffixMaxSrc []int
}

// Solve runs the search until it proves optimality, the context is
// canceled, or timeLimit elapses (zero means no limit beyond ctx). The
// heuristic's work state and the per-depth arenas are acquired here and
// become garbage at return; nothing outlives the call.
func (s *Searcher) Solve(ctx context.Context, timeLimit time.Duration) (Result, error) {
	start := s.clock.Now()
	cfg := s.config
	problem := s.problem
	maxReloc := cfg.MaxRelocation

	st := NewState(problem)
	r := &searchRun{
		problem: problem,
		cfg:     cfg,
		clock:   s.clock,
		logger:  cfg.Logger,
		ctx:     ctx,
		state:   st,
		pure:    cfg.PureBranchAndBound,
		bestLen: maxReloc + 1,
	}
	if timeLimit > 0 {
		r.deadline = start.Add(timeLimit)
		r.hasDeadline = true
	}

	if st.NumMisoverlay == 0 {
		return Result{Status: StatusOptimal, Elapsed: s.clock.Since(start)}, nil
	}

	r.heur = NewHeuristic(problem)
	seedLimit := cfg.HeuristicMoves
	if seedLimit > maxReloc {
		seedLimit = maxReloc
	}
	if moves, ok := r.heur.Run(st, seedLimit+1); ok {
		r.bestLen = len(moves)
		r.best = append([]Move(nil), moves...)
		r.logger.Debug("ub=%d (greedy seed)", r.bestLen)
	}

	bs0 := NewBoundState(problem, st)
	initialLB := LowerBound(problem, st, bs0, maxReloc, true, cfg.BoundEngine)
	r.logger.Debug("lb=%d time=%s", initialLB, s.clock.Since(start))

	r.alloc(maxReloc)
	defer r.release()

	var status Status
	if r.pure {
		r.cub = maxReloc
		r.bounds[0].CopyFrom(bs0)
		switch r.node(0) {
		case statusTimeLimit:
			status = StatusTimeLimit
		default:
			status = StatusOptimal
		}
	} else {
		status = StatusOptimal
		for cub := initialLB; ; cub++ {
			if r.bestLen <= cub {
				break // every shorter length is exhausted: incumbent is optimal
			}
			if cub > maxReloc {
				break
			}
			r.cub = cub
			r.bounds[0].CopyFrom(bs0)
			r.logger.Debug("cub=%d nodes=%d", cub, r.nodes)
			done := false
			switch r.node(0) {
			case statusFound:
				done = true
			case statusTimeLimit:
				status = StatusTimeLimit
				done = true
			case statusExhausted:
			}
			if done {
				break
			}
		}
	}

	result := Result{
		Status:       status,
		NodesVisited: r.nodes,
		Elapsed:      s.clock.Since(start),
	}
	if r.bestLen <= maxReloc {
		result.Moves = append([]Move(nil), r.best...)
	} else if status != StatusTimeLimit {
		result.Status = StatusInfeasible
	}
	switch result.Status {
	case StatusOptimal:
		r.logger.Debug("opt=%d nodes=%d time=%s", len(result.Moves), r.nodes, result.Elapsed)
	case StatusTimeLimit:
		r.logger.Debug("best=%d nodes=%d time=%s", len(result.Moves), r.nodes, result.Elapsed)
	default:
		r.logger.Debug("infeasible within %d relocations, nodes=%d", maxReloc, r.nodes)
	}
	return result, nil
}

// alloc sizes the per-depth arenas: bound states, child arrays, and the
// dominance scratch, all up front so the hot path never allocates. The
// child arrays and the two integer scratch arrays come out of
// pkg/collections pools and go back in release.
func (r *searchRun) alloc(maxReloc int) {
	depths := maxReloc + 2
	maxChildren := r.problem.NumStack*(r.problem.NumStack-1) + 1
	r.bounds = make([]*BoundState, depths)
	r.srcScratch = make([]*BoundState, depths)
	r.childScratch = make([]*BoundState, depths)
	r.children = make([][]childNode, depths)
	for d := 0; d < depths; d++ {
		r.bounds[d] = newBoundState(r.problem)
		r.srcScratch[d] = newBoundState(r.problem)
		r.childScratch[d] = newBoundState(r.problem)
		arena := *childArenaPool.Get()
		if cap(arena) < maxChildren {
			arena = make([]childNode, 0, maxChildren)
		}
		r.children[d] = arena[:0]
	}
	r.path = make([]Move, 0, depths)
	r.movedPriority = pooledInts(depths)
	r.suffixMaxSrc = pooledInts(depths)
}

// pooledInts takes an integer scratch array of length n from the shared
// pool. Contents are unspecified; every consumer writes before reading.
func pooledInts(n int) []int {
	s := *collections.GetIntSlice()
	if cap(s) < n {
		s = make([]int, n)
	}
	return s[:n]
}

// release returns the pooled arenas. Deferred by Solve so the pools see
// the arrays again whatever path the search exits through.
func (r *searchRun) release() {
	for d := range r.children {
		arena := r.children[d]
		r.children[d] = nil
		childArenaPool.Put(&arena)
	}
	mp := r.movedPriority
	sm := r.suffixMaxSrc
	r.movedPriority, r.suffixMaxSrc = nil, nil
	collections.PutIntSlice(&mp)
	collections.PutIntSlice(&sm)
}

func (r *searchRun) timedOut() bool {
	select {
	case <-r.ctx.Done():
		return true
	default:
	}
	return r.hasDeadline && !r.clock.Now().Before(r.deadline)
}

// budget is the number of moves still spendable below the given level.
func (r *searchRun) budget(level int) int {
	if r.pure {
		return r.bestLen - 1 - level
	}
	return r.cub - level
}

// record installs a new incumbent: the current path, the move just
// applied, and an optional heuristic completion.
func (r *searchRun) record(level int, mv Move, extra []Move) {
	total := level + len(extra)
	if total >= r.bestLen {
		return
	}
	r.bestLen = total
	r.best = r.best[:0]
	r.best = append(r.best, r.path...)
	r.best = append(r.best, mv)
	r.best = append(r.best, extra...)
	r.logger.Debug("ub=%d nodes=%d", total, r.nodes)
}

// node enumerates, filters, orders, and recurses into the children of the
// current state at the given depth. It returns statusFound as soon as a
// solution within the ceiling is in hand (iterative-deepening mode),
// statusTimeLimit on budget expiry, and statusExhausted otherwise.
func (r *searchRun) node(depth int) searchStatus {
	r.nodes++
	if r.nodes%r.cfg.PollInterval == 0 && r.timedOut() {
		return statusTimeLimit
	}

	level := depth + 1
	plb := r.bounds[depth]

	// suffixMaxSrc[t] is the largest source index among the moves at
	// levels > t; a candidate untouched since level t commutes with all of
	// them, and the sweep keeps only the ordering with ascending sources.
	sm := r.suffixMaxSrc[: depth+1 : depth+1]
	sm[depth] = -1
	for d := depth - 1; d >= 0; d-- {
		sm[d] = sm[d+1]
		if s := r.path[d].Src; s > sm[d] {
			sm[d] = s
		}
	}

	children := r.children[depth][:0]
	var sbk srcBackup
	var dbk dstBackup
	noDominance := r.cfg.Dominance == DominanceNone

	for src := 0; src < r.problem.NumStack; src++ {
		ss := r.state.StackState[src]
		if ss.NumTier == 0 {
			continue
		}
		top := r.state.Stack[src][ss.NumTier-1]
		pb := r.problem.Priority[top]
		m := r.state.lastRelocation[top]
		former := -1
		if m > 0 {
			former = r.path[m-1].Src
		}

		if !noDominance && m > 0 {
			// Reversal: the block's former source is untouched, so every
			// move from here replays a move that was available there.
			if r.state.StackState[former].LastChange == -m {
				continue
			}
			if r.forwardInsertable(src, former, m) {
				continue
			}
		}

		lcSrc := abs(ss.LastChange)
		blb := r.srcScratch[depth]
		blb.CopyFrom(plb)
		_, bx := r.state.updateSrc(r.problem, blb, src, level, &sbk)

		for dst := 0; dst < r.problem.NumStack; dst++ {
			if dst == src {
				continue
			}
			ds := r.state.StackState[dst]
			if ds.NumTier >= r.problem.StackHeight {
				continue
			}

			if !noDominance {
				// Transitivity: the destination is unchanged since the
				// block's previous move, which could have landed here
				// directly and saved a relocation.
				if m > 0 && dst != former && abs(ds.LastChange) < m {
					continue
				}
				if r.problem.Duplicate {
					if r.duplicateDominated(src, dst, pb, depth, lcSrc) {
						continue
					}
				} else if r.cfg.Dominance == DominanceIndexSweep {
					t := lcSrc
					if lc := abs(ds.LastChange); lc > t {
						t = lc
					}
					if src < sm[t] {
						continue
					}
				} else if r.cfg.Dominance == DominanceType1 &&
					r.type1Dominated(src, dst, depth, lcSrc, abs(ds.LastChange)) {
					continue
				}
			}

			clb := r.childScratch[depth]
			clb.CopyFrom(blb)
			xb := r.state.updateDst(r.problem, clb, dst, top, level, &dbk)
			mv := Move{Src: src, Dst: dst}

			if r.state.NumMisoverlay == 0 {
				r.record(level, mv, nil)
				r.state.rollbackDst(&dbk)
				if !r.pure {
					r.state.rollbackSrc(&sbk)
					return statusFound
				}
				continue
			}

			budget := r.budget(level)
			if budget < 0 {
				r.state.rollbackDst(&dbk)
				continue
			}
			lb := LowerBound(r.problem, r.state, clb, budget, !(bx && xb), r.cfg.BoundEngine)
			if lb <= budget {
				if !r.cfg.DisableNodeHeuristic {
					if hm, ok := r.heur.Run(r.state, r.bestLen-level); ok {
						r.record(level, mv, hm)
						if !r.pure && r.bestLen <= r.cub {
							r.state.rollbackDst(&dbk)
							r.state.rollbackSrc(&sbk)
							return statusFound
						}
					}
				}
				cost := 0
				if dbk.stat.NumClean == dbk.stat.NumTier {
					cost = dbk.stat.CleanPriority - pb
				}
				children = insertChild(children, childNode{
					move:     mv,
					lb:       lb,
					mis:      r.state.NumMisoverlay,
					priority: pb,
					cost:     cost,
				})
			}
			r.state.rollbackDst(&dbk)
		}
		r.state.rollbackSrc(&sbk)
	}

	for i := range children {
		c := &children[i]
		budget := r.budget(level)
		if c.lb > budget {
			// Only possible in pure mode, where the incumbent tightened
			// since the child was evaluated.
			continue
		}
		top := r.state.Stack[c.move.Src][r.state.StackState[c.move.Src].NumTier-1]
		blb := r.srcScratch[depth]
		blb.CopyFrom(plb)
		_, bx := r.state.updateSrc(r.problem, blb, c.move.Src, level, &sbk)
		clb := r.bounds[depth+1]
		clb.CopyFrom(blb)
		xb := r.state.updateDst(r.problem, clb, c.move.Dst, top, level, &dbk)

		lb := LowerBound(r.problem, r.state, clb, budget, !(bx && xb), r.cfg.BoundEngine)
		st := statusExhausted
		if lb <= budget {
			r.path = append(r.path, c.move)
			r.movedPriority[depth] = c.priority
			st = r.node(depth + 1)
			r.path = r.path[:depth]
		}
		r.state.rollbackDst(&dbk)
		r.state.rollbackSrc(&sbk)
		if st == statusFound || st == statusTimeLimit {
			return st
		}
	}
	return statusExhausted
}

// forwardInsertable reports that a lower-indexed stack has been available
// and untouched since this block's previous move: the block could have
// parked there instead, so relocating it from src is dominated.
func (r *searchRun) forwardInsertable(src, former, m int) bool {
	for z := 0; z < src; z++ {
		if z == former {
			continue
		}
		zs := r.state.StackState[z]
		if zs.NumTier < r.problem.StackHeight && abs(zs.LastChange) < m {
			return true
		}
	}
	return false
}

// type1Dominated consults the reversible-source table: the most recent
// moves whose source still sits untouched. A candidate independent of such
// a move and of everything after it, with a smaller source index, belongs
// to an ordering already canonicalized the other way.
func (r *searchRun) type1Dominated(src, dst, depth, lcSrc, lcDst int) bool {
	tracked := 0
	for d := depth - 1; d >= 0 && tracked < 3; d-- {
		t := d + 1
		x, y := r.path[d].Src, r.path[d].Dst
		if r.state.StackState[x].LastChange != -t {
			continue
		}
		tracked++
		if src == x || src == y || dst == x || dst == y {
			continue
		}
		if lcSrc < t && lcDst < t && src < x {
			return true
		}
	}
	return false
}

// duplicateDominated applies the equal-priority permutation rules: on
// instances where several blocks share a priority, sequences differing
// only in which of them moved first are interchangeable, and only the
// canonical ordering survives.
func (r *searchRun) duplicateDominated(src, dst, pb, depth, lcSrc int) bool {
	// Consecutive moves of equal priority commute (the blocks are
	// interchangeable), so exactly one ordering of each independent pair
	// survives: non-increasing source, destination breaking source ties.
	if depth > 0 {
		prev := r.path[depth-1]
		if pb == r.movedPriority[depth-1] && src != prev.Dst && dst != prev.Src {
			if src > prev.Src || (src == prev.Src && dst < prev.Dst) {
				return true
			}
		}
	}

	// Same-priority swap: the destination's top carries this priority and
	// was deposited earlier by a since-untouched, lower-indexed source
	// while src too sat still. Both deposit orders reach the same layout;
	// this one (smaller source first) is pruned, so the kept ordering moves
	// the larger source first, matching the consecutive rule's direction.
	ds := r.state.StackState[dst]
	if ds.NumTier > 0 && r.problem.Priority[r.state.Stack[dst][ds.NumTier-1]] == pb {
		t := r.state.lastPriorityLevel[pb][dst]
		if t > 0 && t <= depth && r.path[t-1].Dst == dst && ds.LastChange == t {
			s := r.path[t-1].Src
			if s != src && lcSrc < t && src > s &&
				r.state.StackState[s].LastChange == -t {
				return true
			}
		}
	}
	return false
}

// insertChild keeps children sorted by the best-first key: smaller lower
// bound, then fewer remaining misoverlays, then larger moved priority,
// then smaller relocation cost. Insertion keeps equal keys in generation
// order, so node counts reproduce run to run.
func insertChild(children []childNode, c childNode) []childNode {
	i := len(children)
	children = append(children, c)
	for i > 0 && childLess(c, children[i-1]) {
		children[i] = children[i-1]
		i--
	}
	children[i] = c
	return children
}

func childLess(a, b childNode) bool {
	if a.lb != b.lb {
		return a.lb < b.lb
	}
	if a.mis != b.mis {
		return a.mis < b.mis
	}
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.cost < b.cost
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
