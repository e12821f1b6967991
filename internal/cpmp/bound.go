package cpmp

// BoundEngine selects which refinements of the demand/supply lower bound
// are active. The reference solver exposes these as mutually exclusive
// compile-time switches; here they collapse into one enum chosen at
// configuration time.
type BoundEngine int

const (
	// BoundEnginePrimary is the default: misoverlay count with the
	// no-slack dig refinement, the bulk-removal supply bound, and the
	// nearly-stuck increment.
	BoundEnginePrimary BoundEngine = iota

	// BoundEngineSecondary keeps only the two base components, dropping
	// both refinements. Useful for cross-checking and for instances where
	// the refinements' extra scans cost more than they prune.
	BoundEngineSecondary
)

// LowerBound computes an admissible lower bound on the relocations still
// required from st, caching the components in bs:
//
//   - lbBX counts the misoverlaid blocks, each of which must move at least
//     once. When no stack has slack above a clean prefix, the shallowest
//     misoverlaid run must additionally be dug out before any block can
//     come to rest, so its height is added.
//   - lbGX counts relocations that expand supply: when the demand for
//     slots at some priority threshold exceeds the supply, clean tops must
//     be removed in bulk to raise exposed priorities, and the cheapest
//     such removals are summed.
//
// budget lets the computation short-circuit as soon as the branch is dead:
// the exact value above budget never matters. recomputeGX false reuses the
// lbGX cached in bs, which is valid after a BB move (both endpoints kept
// their clean structure).
func LowerBound(problem *Problem, st *State, bs *BoundState, budget int, recomputeGX bool, engine BoundEngine) int {
	lbBX := st.NumMisoverlay
	if engine == BoundEnginePrimary && bs.NDirtyStack > 0 &&
		bs.NDirtyStack+bs.NFullCleanStack == problem.NumStack {
		minDig := problem.StackHeight
		for s := range st.StackState {
			ss := &st.StackState[s]
			if d := ss.NumTier - ss.NumClean; d > 0 && d < minDig {
				minDig = d
			}
		}
		lbBX += minDig
	}
	bs.LbBX = lbBX
	if lbBX > budget {
		bs.Lb = lbBX
		return lbBX
	}

	if recomputeGX {
		bs.LbGX = computeLbGX(problem, st, bs)
	}
	lb := lbBX + bs.LbGX
	if engine == BoundEnginePrimary && lb <= budget {
		lb += stuckPenalty(problem, st, bs)
	}
	bs.Lb = lb
	return lb
}

// computeLbGX derives the supply-expansion bound from the demand/supply
// vectors. Scanning priorities downward, the running surplus of demand
// over supply peaks at some threshold p*; if positive, enough stacks must
// have their tops bulk-removed until they expose priority >= p*, and the
// cheapest stacks (by removal cost) are charged.
func computeLbGX(problem *Problem, st *State, bs *BoundState) int {
	surplus, maxSurplus, target := 0, 0, -1
	for p := problem.MaxPriority; p >= 0; p-- {
		surplus += bs.Demand[p] - bs.Supply[p]
		if surplus > maxSurplus {
			maxSurplus = surplus
			target = p
		}
	}
	if maxSurplus <= 0 {
		return 0
	}

	h := problem.StackHeight
	bucket := bs.bucket
	for k := range bucket {
		bucket[k] = 0
	}
	for s := range st.StackState {
		if st.StackState[s].CleanPriority >= target {
			continue
		}
		k := bs.Removal[s][target]
		if k > h {
			k = h
		}
		bucket[k]++
	}

	need := (maxSurplus + h - 1) / h
	lbGX := 0
	for k := 1; k <= h && need > 0; k++ {
		take := bucket[k]
		if take > need {
			take = need
		}
		lbGX += k * take
		need -= take
	}
	return lbGX
}

// stuckPenalty adds one move in the nearly-stuck configurations the base
// components both miss: supply looks sufficient (lbGX is 0) and clean
// destinations exist, but they are so few that unless some misoverlaid run
// can be unloaded in order onto the best of them, at least one block must
// detour. A misoverlaid stack qualifies for the in-order unload when it is
// upside down and its largest misoverlaid priority fits the loosest slack
// clean top.
func stuckPenalty(problem *Problem, st *State, bs *BoundState) int {
	if st.NumMisoverlay == 0 || bs.LbGX != 0 {
		return 0
	}
	clean := problem.NumStack - bs.NDirtyStack
	slack := clean - bs.NFullCleanStack
	if slack == 0 {
		// Already covered by the dig refinement in LowerBound.
		return 0
	}
	if clean > 2 && slack > 1 {
		return 0
	}

	target := -1
	for s := range st.StackState {
		ss := &st.StackState[s]
		if ss.NumClean == ss.NumTier && ss.NumTier < problem.StackHeight &&
			ss.CleanPriority > target {
			target = ss.CleanPriority
		}
	}
	for s := range st.StackState {
		ss := &st.StackState[s]
		if ss.NumClean < ss.NumTier && ss.UpsideDown && ss.MisoverlayPriority <= target {
			return 0
		}
	}
	return 1
}
