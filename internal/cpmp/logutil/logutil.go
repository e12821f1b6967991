// Package logutil adapts pkg/utils.Logger into the solver's diagnostic
// stream: search progress, node counts, and bound tightenings emitted at
// Debug level, gated behind --verbose.
package logutil

import (
	"io"
	"os"

	"github.com/tanaka-lab/cpmp/pkg/utils"
)

// New builds a Logger writing to out at the given level. Pass
// utils.LevelDebug when --verbose is set, utils.LevelInfo otherwise.
func New(level utils.LogLevel, out io.Writer) utils.Logger {
	if out == nil {
		out = os.Stderr
	}
	return utils.NewDefaultLogger(level, out)
}

// Verbose returns the Debug-level variant of level when verbose is true,
// otherwise level unchanged. Used by the CLI to apply --verbose uniformly
// regardless of the configured log level.
func Verbose(level utils.LogLevel, verbose bool) utils.LogLevel {
	if verbose {
		return utils.LevelDebug
	}
	return level
}

// SearchLogger wraps a Logger with fields identifying the run, so every
// line emitted during a solve can be correlated back to it in aggregated
// output.
func SearchLogger(base utils.Logger, runID string, numStack, stackHeight, numBlock int) utils.Logger {
	return base.WithFields(map[string]interface{}{
		"run_id":       runID,
		"num_stack":    numStack,
		"stack_height": stackHeight,
		"num_block":    numBlock,
	})
}
