package cpmp

import "math"

// Heuristic is the constructive upper-bound producer: a greedy pass that
// only ever plays BG relocations (misoverlaid top onto a clean stack that
// accepts it) and, when none applies, GG relocations (clean top onto
// another clean stack, to expose a looser clean priority). The reference
// implementation keeps its work buffers as process-lifetime static state;
// here they live on the Heuristic value, lazily sized on first use and
// reused across the millions of probes a search performs, so one Solve
// call never shares scratch with another.
type Heuristic struct {
	problem *Problem
	work    *State
	moves   []Move
}

// NewHeuristic builds a Heuristic for problem.
func NewHeuristic(problem *Problem) *Heuristic {
	return &Heuristic{problem: problem}
}

// Run greedily sorts a copy of state and returns the move sequence, which
// is only valid until the next Run call. It succeeds iff it reaches a
// fully sorted yard in fewer than limit moves; on failure the returned
// slice is nil.
func (h *Heuristic) Run(state *State, limit int) ([]Move, bool) {
	if h.work == nil {
		h.work = state.Clone()
	} else {
		h.work.CopyFrom(state)
	}
	w := h.work
	h.moves = h.moves[:0]
	lastDst := -1

	for w.NumMisoverlay > 0 {
		if len(h.moves) >= limit-1 {
			return nil, false
		}
		move, ok := h.bestBG(w)
		if !ok {
			move, ok = h.bestGG(w, lastDst)
		}
		if !ok {
			return nil, false
		}
		w.ApplyMove(h.problem, len(h.moves), move)
		h.moves = append(h.moves, move)
		lastDst = move.Dst
	}
	if len(h.moves) >= limit {
		return nil, false
	}
	return h.moves, true
}

// bestBG picks the BG relocation whose destination clean priority drops
// the least, i.e. the misoverlaid top goes to the tightest clean stack
// still accepting it. Ties prefer the source with the larger clean
// priority, then the source with more misoverlaid blocks, so the deepest
// trouble is attacked while good prefixes stay intact.
func (h *Heuristic) bestBG(w *State) (Move, bool) {
	problem := h.problem
	best := Move{}
	found := false
	bestDecrease, bestSrcClean, bestSrcMis := math.MaxInt, -1, -1

	for src := range w.StackState {
		ss := &w.StackState[src]
		if ss.NumClean == ss.NumTier {
			continue
		}
		p := problem.Priority[w.Stack[src][ss.NumTier-1]]
		dst, dstClean := tightestCleanDst(problem, w, p, src)
		if dst < 0 {
			continue
		}
		decrease := dstClean - p
		srcMis := ss.NumTier - ss.NumClean
		if decrease < bestDecrease ||
			(decrease == bestDecrease && (ss.CleanPriority > bestSrcClean ||
				(ss.CleanPriority == bestSrcClean && srcMis > bestSrcMis))) {
			bestDecrease, bestSrcClean, bestSrcMis = decrease, ss.CleanPriority, srcMis
			best = Move{Src: src, Dst: dst}
			found = true
		}
	}
	return best, found
}

// bestGG relocates a clean top whose removal exposes a strictly larger
// clean priority, placing it on the tightest other clean stack. The pair
// maximizing the net gain (exposed priority minus the destination's clean
// priority) wins; ties prefer the larger exposed priority, then the
// shorter source stack. The destination of the previous move is barred as
// a source so the pass cannot oscillate.
func (h *Heuristic) bestGG(w *State, lastDst int) (Move, bool) {
	problem := h.problem
	best := Move{}
	found := false
	bestGain, bestExposed, bestTier := math.MinInt, -1, math.MaxInt

	for src := range w.StackState {
		ss := &w.StackState[src]
		if src == lastDst || ss.NumTier == 0 || ss.NumClean != ss.NumTier ||
			ss.NumTier >= problem.StackHeight {
			continue
		}
		top := problem.Priority[w.Stack[src][ss.NumTier-1]]
		exposed := problem.MaxPriority
		if ss.NumTier > 1 {
			exposed = problem.Priority[w.Stack[src][ss.NumTier-2]]
		}
		if exposed <= top {
			continue
		}
		dst, dstClean := tightestCleanDst(problem, w, top, src)
		if dst < 0 {
			continue
		}
		gain := exposed - dstClean
		if gain > bestGain ||
			(gain == bestGain && (exposed > bestExposed ||
				(exposed == bestExposed && ss.NumTier < bestTier))) {
			bestGain, bestExposed, bestTier = gain, exposed, ss.NumTier
			best = Move{Src: src, Dst: dst}
			found = true
		}
	}
	return best, found
}

// tightestCleanDst finds the fully clean, non-full stack other than src
// with the smallest clean priority still accepting p. Returns -1 when no
// clean stack accepts it.
func tightestCleanDst(problem *Problem, w *State, p, src int) (int, int) {
	dst, dstClean := -1, math.MaxInt
	for j := range w.StackState {
		js := &w.StackState[j]
		if j == src || js.NumClean != js.NumTier || js.NumTier >= problem.StackHeight {
			continue
		}
		if js.CleanPriority >= p && js.CleanPriority < dstClean {
			dstClean = js.CleanPriority
			dst = j
		}
	}
	return dst, dstClean
}
