// Package cpmp implements a branch-and-bound solver for the container
// premarshalling problem: given a yard of equal-height stacks holding
// containers with retrieval priorities, find a minimum-length sequence of
// intra-yard relocations that sorts every stack so no container ever
// blocks the retrieval of a container with a smaller priority value.
package cpmp

import "sort"

// Block identifies a container by its position in Problem.Priority and
// Problem.Position. Block identifiers are assigned once at construction
// time and never change, even though a block moves between stacks and
// tiers as the search mutates State.
type Block int

// Coordinate is a stack/tier pair describing where a block started.
type Coordinate struct {
	Stack int
	Tier  int
}

// Problem is the immutable description of a premarshalling instance.
//
// Priority is remapped at construction time to a dense range 0..MaxPriority
// so the bound and heuristic code can use priority values as array indices.
// Remapping preserves relative order: if block a must be retrieved before
// block b in the input, Priority[a] < Priority[b] after remapping, except
// when both blocks carry the same input priority, in which case they are
// assigned the same remapped priority and Duplicate is set.
type Problem struct {
	NumBlock    int
	NumStack    int
	StackHeight int

	// Block[s] lists the blocks in stack s from bottom (index 0) to the
	// initial top, length NumTier[s] <= StackHeight.
	Block [][]Block

	// NumTier[s] is the initial number of blocks in stack s.
	NumTier []int

	// Priority[b] is the remapped priority of block b. 0 is retrieved
	// first.
	Priority []int

	// Position[b] is the initial stack/tier of block b.
	Position []Coordinate

	MaxPriority int
	Duplicate   bool
}

type rawBlock struct {
	id       Block
	priority int
	stack    int
	tier     int
}

// NewProblem builds a Problem from raw per-stack priority lists, ordered
// bottom to top. Priority values need not be contiguous or zero-based;
// NewProblem remaps them. A stack may hold fewer than stackHeight blocks
// but never more.
func NewProblem(stacks [][]int, stackHeight int) (*Problem, error) {
	numStack := len(stacks)
	numBlock := 0
	for _, s := range stacks {
		if len(s) > stackHeight {
			return nil, &ValidationError{Reason: "stack height exceeded"}
		}
		numBlock += len(s)
	}

	raw := make([]rawBlock, 0, numBlock)
	var id Block
	blockIDs := make([][]Block, numStack)
	for s, tiers := range stacks {
		blockIDs[s] = make([]Block, len(tiers))
		for t, p := range tiers {
			raw = append(raw, rawBlock{id: id, priority: p, stack: s, tier: t})
			blockIDs[s][t] = id
			id++
		}
	}

	// Order equal-priority blocks by tier descending, then stack
	// descending, mirroring the reference loader's comparator so ties
	// break deterministically regardless of map/slice iteration order.
	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].priority != raw[j].priority {
			return raw[i].priority < raw[j].priority
		}
		if raw[i].tier != raw[j].tier {
			return raw[i].tier > raw[j].tier
		}
		return raw[i].stack > raw[j].stack
	})

	priority := make([]int, numBlock)
	duplicate := false
	rank := -1
	lastRaw := -1 << 31
	for _, b := range raw {
		if b.priority != lastRaw {
			rank++
			lastRaw = b.priority
		} else {
			duplicate = true
		}
		priority[b.id] = rank
	}

	position := make([]Coordinate, numBlock)
	numTier := make([]int, numStack)
	for s, tiers := range blockIDs {
		numTier[s] = len(tiers)
		for t, bid := range tiers {
			position[bid] = Coordinate{Stack: s, Tier: t}
		}
	}

	if rank < numBlock-1 {
		duplicate = true
	}

	return &Problem{
		NumBlock:    numBlock,
		NumStack:    numStack,
		StackHeight: stackHeight,
		Block:       blockIDs,
		NumTier:     numTier,
		Priority:    priority,
		Position:    position,
		MaxPriority: rank,
		Duplicate:   duplicate,
	}, nil
}

// ValidationError reports a structural problem with input data, distinct
// from the solver's own errors.SolverError so parser and constructor
// failures carry a stable, minimal type the caller can match on.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
