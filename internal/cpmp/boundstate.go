package cpmp

// BoundState carries the demand/supply accounting the lower-bound engine
// reads, maintained in lockstep with State by updateSrc/updateDst. The
// search keeps one BoundState per recursion depth and copies the parent's
// into a sibling-shared scratch slot before each incremental update, so a
// child never needs to rebuild the tables from the towers.
type BoundState struct {
	// Demand[p] counts misoverlaid blocks of priority p: each needs a slot
	// on a stack whose clean prefix tops out at priority >= p.
	Demand []int

	// Supply[p] counts the slots above clean prefixes, binned at the
	// owning stack's clean priority. Slots currently occupied by
	// misoverlaid blocks count too: those blocks move away in any
	// solution.
	Supply []int

	// Removal[s][p] is the number of top blocks that must leave stack s
	// before its exposed clean-prefix top accepts priority p: the
	// misoverlaid run plus every clean-prefix block of priority < p.
	Removal [][]int

	// NDirtyStack counts stacks with a misoverlaid block;
	// NFullCleanStack counts stacks that are fully clean and full. When
	// the two sum to the stack count, no slack clean stack exists and
	// every relocation buries its block further.
	NDirtyStack     int
	NFullCleanStack int

	// Cached bound components from the most recent LowerBound call on
	// this state. LbGX in particular is reused across BB moves, which
	// cannot loosen it.
	LbBX int
	LbGX int
	Lb   int

	bucket []int // scratch for the bulk-removal allocation
}

// newBoundState allocates a BoundState sized for problem, with every table
// zeroed.
func newBoundState(problem *Problem) *BoundState {
	n := problem.MaxPriority + 1
	bs := &BoundState{
		Demand:  make([]int, n),
		Supply:  make([]int, n),
		Removal: make([][]int, problem.NumStack),
		bucket:  make([]int, problem.StackHeight+1),
	}
	for s := range bs.Removal {
		bs.Removal[s] = make([]int, n)
	}
	return bs
}

// NewBoundState builds the bound state for st from scratch.
func NewBoundState(problem *Problem, st *State) *BoundState {
	bs := newBoundState(problem)
	bs.Reset(problem, st)
	return bs
}

// Reset recomputes every table from st, discarding incremental history.
// Used at solve entry and by tests cross-checking the incremental updates.
func (bs *BoundState) Reset(problem *Problem, st *State) {
	for p := range bs.Demand {
		bs.Demand[p] = 0
		bs.Supply[p] = 0
	}
	bs.NDirtyStack = 0
	bs.NFullCleanStack = 0
	bs.LbBX, bs.LbGX, bs.Lb = 0, 0, 0

	for s := range st.Stack {
		ss := st.StackState[s]
		blocks := st.Stack[s]
		for t := ss.NumClean; t < ss.NumTier; t++ {
			bs.Demand[problem.Priority[blocks[t]]]++
		}
		bs.Supply[ss.CleanPriority] += problem.StackHeight - ss.NumClean
		if ss.NumClean < ss.NumTier {
			bs.NDirtyStack++
		} else if ss.NumTier == problem.StackHeight {
			bs.NFullCleanStack++
		}

		row := bs.Removal[s]
		removed := ss.NumTier - ss.NumClean
		idx := ss.NumClean - 1
		for p := 0; p <= problem.MaxPriority; p++ {
			for idx >= 0 && problem.Priority[blocks[idx]] < p {
				removed++
				idx--
			}
			row[p] = removed
		}
	}
}

// CopyFrom overwrites bs with o. Both must be sized for the same problem.
func (bs *BoundState) CopyFrom(o *BoundState) {
	copy(bs.Demand, o.Demand)
	copy(bs.Supply, o.Supply)
	for s := range o.Removal {
		copy(bs.Removal[s], o.Removal[s])
	}
	bs.NDirtyStack = o.NDirtyStack
	bs.NFullCleanStack = o.NFullCleanStack
	bs.LbBX = o.LbBX
	bs.LbGX = o.LbGX
	bs.Lb = o.Lb
}

func (bs *BoundState) addRemoval(s, lo, hi, delta int) {
	row := bs.Removal[s]
	for p := lo; p <= hi; p++ {
		row[p] += delta
	}
}

// applySrc accounts a pop from src. old and now are the stack's summary
// before and after; bx reports a misoverlaid (BX) pop.
func (bs *BoundState) applySrc(problem *Problem, src, popped int, old, now StackState, bx bool) {
	if bx {
		bs.Demand[popped]--
		bs.addRemoval(src, 0, problem.MaxPriority, -1)
		if now.NumClean == now.NumTier {
			bs.NDirtyStack--
		}
		return
	}
	// GX: a clean top left, raising the exposed clean priority and
	// shifting the stack's slots to the new bin.
	h := problem.StackHeight
	bs.Supply[old.CleanPriority] -= h - old.NumClean
	bs.Supply[now.CleanPriority] += h - now.NumClean
	if old.CleanPriority < problem.MaxPriority {
		bs.addRemoval(src, old.CleanPriority+1, problem.MaxPriority, -1)
	}
	if old.NumTier == h {
		bs.NFullCleanStack--
	}
}

// applyDst accounts a push onto dst; xb reports a misoverlaying (XB) push.
func (bs *BoundState) applyDst(problem *Problem, dst, pushed int, old, now StackState, xb bool) {
	h := problem.StackHeight
	if xb {
		bs.Demand[pushed]++
		bs.addRemoval(dst, 0, problem.MaxPriority, +1)
		if old.NumClean == old.NumTier {
			bs.NDirtyStack++
		}
		return
	}
	// XG: the clean prefix grew; its slots move to the pushed priority's
	// bin and the new top raises every removal cost above it.
	bs.Supply[old.CleanPriority] -= h - old.NumClean
	bs.Supply[now.CleanPriority] += h - now.NumClean
	if pushed < problem.MaxPriority {
		bs.addRemoval(dst, pushed+1, problem.MaxPriority, +1)
	}
	if now.NumTier == h {
		bs.NFullCleanStack++
	}
}
