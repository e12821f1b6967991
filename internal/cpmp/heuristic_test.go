package cpmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristic_SolvesScenarios(t *testing.T) {
	for _, name := range scenarioFiles {
		problem, err := ParseFile("testdata/" + name)
		require.NoError(t, err)
		st := NewState(problem)
		h := NewHeuristic(problem)

		moves, ok := h.Run(st, problem.maxRelocation()+1)
		require.True(t, ok, "%s: greedy pass should complete", name)
		assert.True(t, replay(t, problem, moves).IsGoal(), "%s: greedy moves must sort the yard", name)
	}
}

func TestHeuristic_PrefersBGOverGG(t *testing.T) {
	// The misoverlaid top of stack 0 has a clean home on stack 2, so the
	// first move must be that BG relocation even though GG moves exist.
	problem, err := ParseFile("testdata/s2_single_misplaced.txt")
	require.NoError(t, err)
	h := NewHeuristic(problem)
	moves, ok := h.Run(NewState(problem), 10)
	require.True(t, ok)
	require.Len(t, moves, 1)
	assert.Equal(t, Move{Src: 0, Dst: 2}, moves[0])
}

func TestHeuristic_UsesGGWhenNoBGExists(t *testing.T) {
	// No clean stack accepts the misoverlaid 5; the pass must first play
	// the GG move exposing the 6, then land the 5 on it.
	problem, err := ParseFile("testdata/s6_mixed_heuristic_classes.txt")
	require.NoError(t, err)
	h := NewHeuristic(problem)
	moves, ok := h.Run(NewState(problem), 10)
	require.True(t, ok)
	require.Len(t, moves, 2)
	assert.Equal(t, Move{Src: 2, Dst: 1}, moves[0])
	assert.Equal(t, Move{Src: 0, Dst: 2}, moves[1])
}

func TestHeuristic_FailsWithoutCleanDestination(t *testing.T) {
	// Both stacks dirty and full: no BG or GG candidate ever exists.
	problem := mustProblem(t, [][]int{{0, 1}, {0, 1}}, 2)
	h := NewHeuristic(problem)
	moves, ok := h.Run(NewState(problem), 10)
	assert.False(t, ok)
	assert.Nil(t, moves)
}

func TestHeuristic_RespectsMoveLimit(t *testing.T) {
	problem, err := ParseFile("testdata/s3_moderate_shuffle.txt")
	require.NoError(t, err)
	h := NewHeuristic(problem)

	// The instance needs two moves; a limit of 2 demands a strictly
	// shorter completion and must fail.
	_, ok := h.Run(NewState(problem), 2)
	assert.False(t, ok)

	moves, ok := h.Run(NewState(problem), 3)
	require.True(t, ok)
	assert.Len(t, moves, 2)
}

func TestHeuristic_ScratchReusedAcrossRuns(t *testing.T) {
	problem, err := ParseFile("testdata/s2_single_misplaced.txt")
	require.NoError(t, err)
	h := NewHeuristic(problem)
	st := NewState(problem)

	first, ok := h.Run(st, 10)
	require.True(t, ok)
	want := append([]Move(nil), first...)

	// The input state is untouched, and a rerun reproduces the sequence.
	assert.Equal(t, 1, st.NumMisoverlay)
	second, ok := h.Run(st, 10)
	require.True(t, ok)
	assert.Equal(t, want, second)
}
