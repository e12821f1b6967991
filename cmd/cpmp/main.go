// Command cpmp solves the container premarshalling problem: given a yard
// of stacks holding containers with retrieval priorities, find a
// minimum-length sequence of relocations that sorts every stack.
package main

import "github.com/tanaka-lab/cpmp/internal/cli"

func main() {
	cli.Execute()
}
