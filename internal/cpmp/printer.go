package cpmp

import (
	"fmt"
	"io"
	"strings"
)

// PrintState writes a human-readable dump of state's stacks, bottom to
// top, one stack per line. Clean-prefix blocks print as [p], misoverlaid
// blocks as <p>, so a disordered yard is visible at a glance.
func PrintState(w io.Writer, problem *Problem, state *State) {
	for s, blocks := range state.Stack {
		var b strings.Builder
		fmt.Fprintf(&b, "Stack %d:", s)
		clean := state.StackState[s].NumClean
		for t, block := range blocks {
			if t < clean {
				fmt.Fprintf(&b, " [%d]", problem.Priority[block])
			} else {
				fmt.Fprintf(&b, " <%d>", problem.Priority[block])
			}
		}
		fmt.Fprintln(w, b.String())
	}
}

// PrintResult writes a Result's relocation sequence in "src -> dst"
// ordered form, one per line, followed by a summary line.
func PrintResult(w io.Writer, result Result) {
	for i, mv := range result.Moves {
		fmt.Fprintf(w, "%4d: %d -> %d\n", i+1, mv.Src, mv.Dst)
	}
	fmt.Fprintf(w, "relocations=%d status=%s nodes=%d elapsed=%s\n",
		len(result.Moves), result.Status, result.NodesVisited, result.Elapsed)
}
