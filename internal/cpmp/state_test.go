package cpmp

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkStateInvariants recomputes every stack summary from the raw layout
// and compares it against the incrementally maintained one.
func checkStateInvariants(t *testing.T, problem *Problem, st *State) {
	t.Helper()
	totalMis := 0
	for s := range st.Stack {
		blocks := st.Stack[s]
		ss := st.StackState[s]
		require.Equal(t, len(blocks), ss.NumTier, "stack %d tier count", s)
		require.LessOrEqual(t, ss.NumTier, problem.StackHeight, "stack %d height", s)

		clean := 0
		for clean < len(blocks) {
			if clean > 0 && problem.Priority[blocks[clean]] > problem.Priority[blocks[clean-1]] {
				break
			}
			clean++
		}
		require.Equal(t, clean, ss.NumClean, "stack %d clean prefix", s)

		wantClean := problem.MaxPriority
		if clean > 0 {
			wantClean = problem.Priority[blocks[clean-1]]
		}
		require.Equal(t, wantClean, ss.CleanPriority, "stack %d clean priority", s)

		wantMis := 0
		for t2 := clean; t2 < len(blocks); t2++ {
			if p := problem.Priority[blocks[t2]]; p > wantMis {
				wantMis = p
			}
		}
		require.Equal(t, wantMis, ss.MisoverlayPriority, "stack %d misoverlay priority", s)

		wantUpside := false
		if clean < len(blocks) {
			wantUpside = problem.Priority[blocks[clean]] == wantMis
		}
		require.Equal(t, wantUpside, ss.UpsideDown, "stack %d upside down", s)

		totalMis += len(blocks) - clean
	}
	require.Equal(t, totalMis, st.NumMisoverlay, "global misoverlay count")
}

func TestState_InitialStatistics(t *testing.T) {
	// Remapped priorities: 1->0, 3->1, 5->2, 6->3, 7->4, 8->5.
	problem := mustProblem(t, [][]int{{5, 1, 3}, {8, 7, 6}, {}}, 3)
	st := NewState(problem)

	assert.Equal(t, 1, st.NumMisoverlay)

	s0 := st.StackState[0]
	assert.Equal(t, 2, s0.NumClean)
	assert.Equal(t, 0, s0.CleanPriority)
	assert.Equal(t, 1, s0.MisoverlayPriority)
	assert.True(t, s0.UpsideDown)

	s1 := st.StackState[1]
	assert.Equal(t, 3, s1.NumClean)
	assert.Equal(t, 3, s1.CleanPriority)
	assert.Equal(t, 0, s1.MisoverlayPriority)
	assert.False(t, s1.UpsideDown)

	s2 := st.StackState[2]
	assert.Equal(t, 0, s2.NumTier)
	assert.Equal(t, problem.MaxPriority, s2.CleanPriority)
}

func TestState_UpsideDownTracking(t *testing.T) {
	// Stack [0, 2, 1]: clean prefix is just the 0, and the first
	// misoverlaid block (2) is the largest of the misoverlaid run.
	problem := mustProblem(t, [][]int{{0, 2, 1}, {}}, 3)
	st := NewState(problem)
	assert.Equal(t, 2, st.NumMisoverlay)
	assert.True(t, st.StackState[0].UpsideDown)

	// Stack [0, 1, 2]: the first misoverlaid block (1) is not the largest.
	problem = mustProblem(t, [][]int{{0, 1, 2}, {}}, 3)
	st = NewState(problem)
	assert.False(t, st.StackState[0].UpsideDown)
}

func TestState_ApplyMoveMaintainsInvariants(t *testing.T) {
	problem, err := ParseFile("testdata/s5_stack_overflow_avoidance.txt")
	require.NoError(t, err)
	st := NewState(problem)
	checkStateInvariants(t, problem, st)

	moves := []Move{{Src: 2, Dst: 3}, {Src: 1, Dst: 3}, {Src: 1, Dst: 2}}
	for i, mv := range moves {
		st.ApplyMove(problem, i, mv)
		checkStateInvariants(t, problem, st)
	}
	assert.Equal(t, 2, st.StackState[3].NumTier)
}

func TestState_UpdateRollbackRestoresExactly(t *testing.T) {
	problem, err := ParseFile("testdata/s4_duplicate_priority.txt")
	require.NoError(t, err)
	st := NewState(problem)
	bs := NewBoundState(problem, st)
	before := st.Clone()

	var sbk srcBackup
	var dbk dstBackup
	for src := range st.Stack {
		if st.StackState[src].NumTier == 0 {
			continue
		}
		for dst := range st.Stack {
			if dst == src || st.StackState[dst].NumTier >= problem.StackHeight {
				continue
			}
			scratch := NewBoundState(problem, st)
			scratch.CopyFrom(bs)
			b, _ := st.updateSrc(problem, scratch, src, 1, &sbk)
			st.updateDst(problem, scratch, dst, b, 1, &dbk)
			st.rollbackDst(&dbk)
			st.rollbackSrc(&sbk)

			assert.Equal(t, before.NumMisoverlay, st.NumMisoverlay)
			assert.True(t, reflect.DeepEqual(before.Stack, st.Stack), "%d->%d layout", src, dst)
			assert.True(t, reflect.DeepEqual(before.StackState, st.StackState), "%d->%d summaries", src, dst)
			assert.True(t, reflect.DeepEqual(before.blockState, st.blockState), "%d->%d prefix cache", src, dst)
			assert.True(t, reflect.DeepEqual(before.lastRelocation, st.lastRelocation), "%d->%d relocation levels", src, dst)
			assert.True(t, reflect.DeepEqual(before.lastPriorityLevel, st.lastPriorityLevel), "%d->%d priority levels", src, dst)
		}
	}
}

func TestState_UpdateFlagsClassifyMoves(t *testing.T) {
	// Stack 0 holds a misoverlaid top, stack 1 a clean one.
	problem := mustProblem(t, [][]int{{0, 2}, {3, 1}, {}}, 3)
	st := NewState(problem)
	bs := NewBoundState(problem, st)

	var sbk srcBackup
	var dbk dstBackup

	// BG: misoverlaid top onto the empty stack.
	scratch := NewBoundState(problem, st)
	scratch.CopyFrom(bs)
	b, bx := st.updateSrc(problem, scratch, 0, 1, &sbk)
	assert.True(t, bx, "pop of a misoverlaid top is BX")
	xb := st.updateDst(problem, scratch, 2, b, 1, &dbk)
	assert.False(t, xb, "landing on an empty stack is XG")
	st.rollbackDst(&dbk)
	st.rollbackSrc(&sbk)

	// GB: clean top of stack 1 buried onto stack 0's misoverlay.
	scratch.CopyFrom(bs)
	b, bx = st.updateSrc(problem, scratch, 1, 1, &sbk)
	assert.False(t, bx, "pop of a clean top is GX")
	xb = st.updateDst(problem, scratch, 0, b, 1, &dbk)
	assert.True(t, xb, "landing above a misoverlay is XB")
	st.rollbackDst(&dbk)
	st.rollbackSrc(&sbk)
}

func TestState_CloneAndCopyFromRoundTrip(t *testing.T) {
	problem, err := ParseFile("testdata/s6_mixed_heuristic_classes.txt")
	require.NoError(t, err)
	st := NewState(problem)
	st.ApplyMove(problem, 0, Move{Src: 2, Dst: 1})

	clone := st.Clone()
	assert.True(t, reflect.DeepEqual(st.Stack, clone.Stack))
	assert.True(t, reflect.DeepEqual(st.StackState, clone.StackState))

	other := NewState(problem)
	other.CopyFrom(st)
	assert.Equal(t, st.NumMisoverlay, other.NumMisoverlay)
	assert.True(t, reflect.DeepEqual(st.Stack, other.Stack))
	assert.True(t, reflect.DeepEqual(st.StackState, other.StackState))
}

func TestBoundState_IncrementalMatchesReset(t *testing.T) {
	problem, err := ParseFile("testdata/s3_moderate_shuffle.txt")
	require.NoError(t, err)
	st := NewState(problem)
	bs := NewBoundState(problem, st)

	var sbk srcBackup
	var dbk dstBackup
	moves := []Move{{Src: 0, Dst: 3}, {Src: 1, Dst: 3}, {Src: 2, Dst: 0}, {Src: 2, Dst: 1}}
	for i, mv := range moves {
		b, _ := st.updateSrc(problem, bs, mv.Src, i+1, &sbk)
		st.updateDst(problem, bs, mv.Dst, b, i+1, &dbk)

		fresh := NewBoundState(problem, st)
		assert.Equal(t, fresh.Demand, bs.Demand, "move %d demand", i)
		assert.Equal(t, fresh.Supply, bs.Supply, "move %d supply", i)
		assert.Equal(t, fresh.Removal, bs.Removal, "move %d removal", i)
		assert.Equal(t, fresh.NDirtyStack, bs.NDirtyStack, "move %d dirty count", i)
		assert.Equal(t, fresh.NFullCleanStack, bs.NFullCleanStack, "move %d full-clean count", i)
	}
}
