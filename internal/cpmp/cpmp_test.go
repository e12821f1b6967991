package cpmp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanaka-lab/cpmp/pkg/utils"
)

func mustProblem(t *testing.T, stacks [][]int, height int) *Problem {
	t.Helper()
	p, err := NewProblem(stacks, height)
	require.NoError(t, err)
	return p
}

func solve(t *testing.T, problem *Problem, cfg SearchConfig) Result {
	t.Helper()
	searcher := NewSearcher(problem, cfg, utils.NewMockClock(time.Unix(0, 0)))
	result, err := searcher.Solve(context.Background(), 0)
	require.NoError(t, err)
	return result
}

func replay(t *testing.T, problem *Problem, moves []Move) *State {
	t.Helper()
	state := NewState(problem)
	for i, mv := range moves {
		require.Greater(t, state.StackState[mv.Src].NumTier, 0,
			"move %d pops an empty stack", i)
		require.Less(t, state.StackState[mv.Dst].NumTier, problem.StackHeight,
			"move %d overfills a stack", i)
		state.ApplyMove(problem, i, mv)
	}
	return state
}

func TestSearch_AlreadySorted(t *testing.T) {
	problem := mustProblem(t, [][]int{{2, 1, 0}}, 3)
	result := solve(t, problem, DefaultSearchConfig())
	assert.Equal(t, StatusOptimal, result.Status)
	assert.Empty(t, result.Moves)
}

func TestSearch_OneRelocation(t *testing.T) {
	problem := mustProblem(t, [][]int{{0, 1}, {}}, 2)
	result := solve(t, problem, DefaultSearchConfig())
	assert.Equal(t, StatusOptimal, result.Status)
	assert.Len(t, result.Moves, 1)
}

func TestSearch_TwoIndependentRelocations(t *testing.T) {
	problem := mustProblem(t, [][]int{{0, 3}, {1, 2}, {}}, 2)
	result := solve(t, problem, DefaultSearchConfig())
	assert.Equal(t, StatusOptimal, result.Status)
	assert.Len(t, result.Moves, 2)
}

func TestSearch_MovesReachGoal(t *testing.T) {
	problem := mustProblem(t, [][]int{{0, 3}, {1, 2}, {}}, 2)
	result := solve(t, problem, DefaultSearchConfig())
	assert.True(t, replay(t, problem, result.Moves).IsGoal())
}

func TestSearch_SingleBlockInstance(t *testing.T) {
	problem := mustProblem(t, [][]int{{0}, {}, {}}, 3)
	result := solve(t, problem, DefaultSearchConfig())
	assert.Equal(t, StatusOptimal, result.Status)
	assert.Empty(t, result.Moves)
}

func TestSearch_InfeasibleFullYard(t *testing.T) {
	// Both stacks full and disordered: no relocation is ever legal.
	problem := mustProblem(t, [][]int{{0, 1}, {0, 1}}, 2)
	cfg := DefaultSearchConfig()
	cfg.MaxRelocation = 10
	result := solve(t, problem, cfg)
	assert.Equal(t, StatusInfeasible, result.Status)
	assert.Empty(t, result.Moves)
}

func TestSearch_CanceledContextReturnsTimeLimit(t *testing.T) {
	problem := mustProblem(t, [][]int{{0, 1}, {0, 1}}, 2)
	cfg := DefaultSearchConfig()
	cfg.PollInterval = 1
	searcher := NewSearcher(problem, cfg, utils.NewMockClock(time.Unix(0, 0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := searcher.Solve(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeLimit, result.Status)
}

// noSeedConfig cripples the greedy seed (one-move budget) and disables the
// per-node completion probe, so the optimum can only come out of the
// branch-and-bound tree itself.
func noSeedConfig() SearchConfig {
	cfg := DefaultSearchConfig()
	cfg.HeuristicMoves = 1
	cfg.DisableNodeHeuristic = true
	return cfg
}

func TestSearch_TreeSearchFindsOptima(t *testing.T) {
	for _, name := range scenarioFiles {
		problem, err := ParseFile("testdata/" + name)
		require.NoError(t, err)
		result := solve(t, problem, noSeedConfig())
		require.Equal(t, StatusOptimal, result.Status, name)
		assert.Equal(t, scenarioExpected[name], len(result.Moves), name)
		assert.True(t, replay(t, problem, result.Moves).IsGoal(), name)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	problem, err := ParseFile("testdata/s3_moderate_shuffle.txt")
	require.NoError(t, err)
	first := solve(t, problem, noSeedConfig())
	second := solve(t, problem, noSeedConfig())
	assert.Equal(t, first.Moves, second.Moves)
	assert.Equal(t, first.NodesVisited, second.NodesVisited)
}

func TestSearch_DominanceNeverChangesOptimum(t *testing.T) {
	families := []DominanceFamily{DominanceIndexSweep, DominanceType1, DominanceNone}
	for _, name := range scenarioFiles {
		problem, err := ParseFile("testdata/" + name)
		require.NoError(t, err)
		lengths := make([]int, len(families))
		for i, family := range families {
			cfg := noSeedConfig()
			cfg.Dominance = family
			result := solve(t, problem, cfg)
			require.Equal(t, StatusOptimal, result.Status, "%s family %d", name, family)
			lengths[i] = len(result.Moves)
		}
		assert.Equal(t, lengths[2], lengths[0], "%s: index sweep changed the optimum", name)
		assert.Equal(t, lengths[2], lengths[1], "%s: type1 table changed the optimum", name)
	}
}

func TestSearch_BoundEnginesAgree(t *testing.T) {
	for _, name := range scenarioFiles {
		problem, err := ParseFile("testdata/" + name)
		require.NoError(t, err)
		primary := noSeedConfig()
		secondary := noSeedConfig()
		secondary.BoundEngine = BoundEngineSecondary
		a := solve(t, problem, primary)
		b := solve(t, problem, secondary)
		require.Equal(t, StatusOptimal, a.Status)
		require.Equal(t, StatusOptimal, b.Status)
		assert.Equal(t, len(a.Moves), len(b.Moves), "%s: bound engines disagree", name)
	}
}

func TestSearch_PureBBMatchesDeepening(t *testing.T) {
	names := []string{
		"s2_single_misplaced.txt",
		"s3_moderate_shuffle.txt",
		"s6_mixed_heuristic_classes.txt",
	}
	for _, name := range names {
		problem, err := ParseFile("testdata/" + name)
		require.NoError(t, err)
		pure := noSeedConfig()
		pure.PureBranchAndBound = true
		a := solve(t, problem, noSeedConfig())
		b := solve(t, problem, pure)
		require.Equal(t, StatusOptimal, a.Status)
		require.Equal(t, StatusOptimal, b.Status)
		assert.Equal(t, len(a.Moves), len(b.Moves), "%s: pure BB disagrees with deepening", name)
	}
}

func TestParse_FormatAAndBEquivalent(t *testing.T) {
	formatA := "Stacks: 2\nHeight: 2\n2 0 1\n0\n"
	formatB := "Height: 2\nStack 0: 0 1\nStack 1:\n"

	pa, err := ParseReader(strings.NewReader(formatA))
	require.NoError(t, err)
	pb, err := ParseReader(strings.NewReader(formatB))
	require.NoError(t, err)

	assert.Equal(t, pa.NumBlock, pb.NumBlock)
	assert.Equal(t, pa.NumStack, pb.NumStack)
	assert.Equal(t, pa.Priority, pb.Priority)
}

func TestParse_DetectsDuplicatePriority(t *testing.T) {
	p, err := ParseReader(strings.NewReader("Stack 0: 0 0\nStack 1:\n"))
	require.NoError(t, err)
	assert.True(t, p.Duplicate)
}

func TestParse_CommentsIgnored(t *testing.T) {
	in := "# yard dump\nHeight: 2 # two tiers\nStack 0: 1 2 # bottom to top\nStack 1:\n"
	p, err := ParseReader(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumBlock)
	assert.Equal(t, 2, p.NumStack)
}

func TestParse_OptionsOverrideDimensions(t *testing.T) {
	in := "Stack 0: 3 1\n"
	p, err := ParseReaderOptions(strings.NewReader(in), "auto", ParseOptions{
		NumStack:    3,
		StackHeight: 3,
		ExtraTiers:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, p.NumStack)
	assert.Equal(t, 4, p.StackHeight)
}

func TestParse_OptionsPreferLargerStackCount(t *testing.T) {
	in := "Stacks: 4\nHeight: 2\n1 7\n0\n0\n0\n"
	p, err := ParseReaderOptions(strings.NewReader(in), "a", ParseOptions{NumStack: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, p.NumStack)
}

func TestParse_FormatBLabelsOutOfOrder(t *testing.T) {
	in := "Height: 2\nStack 2: 1 0\nStack 0: 3\nStack 1:\n"
	p, err := ParseReader(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 3, p.NumStack)
	assert.Equal(t, []int{2}, prioritiesOf(p, 0))
	assert.Empty(t, prioritiesOf(p, 1))
	assert.Equal(t, []int{1, 0}, prioritiesOf(p, 2))
}

func TestParse_FormatBDuplicateLabelRejected(t *testing.T) {
	in := "Stack 0: 1\nStack 0: 2\n"
	_, err := ParseReader(strings.NewReader(in))
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func prioritiesOf(p *Problem, stack int) []int {
	out := make([]int, 0, len(p.Block[stack]))
	for _, b := range p.Block[stack] {
		out = append(out, p.Priority[b])
	}
	return out
}

func TestParse_UnknownFormatRejected(t *testing.T) {
	_, err := ParseReaderFormat(strings.NewReader("Stack 0: 1\n"), "c")
	assert.Error(t, err)
}
