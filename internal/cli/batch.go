package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanaka-lab/cpmp/internal/cpmp"
	"github.com/tanaka-lab/cpmp/internal/cpmperrors"
	"github.com/tanaka-lab/cpmp/pkg/parallel"
)

var (
	batchWorkers int
	batchOutDir  string
)

var batchCmd = &cobra.Command{
	Use:   "batch [instances...]",
	Short: "Solve multiple instances concurrently",
	Long: `Batch solves each listed instance file independently using a bounded
worker pool, so a directory of premarshalling instances can be sorted
without serializing the whole batch behind a single search.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "worker pool size (default: min(NumCPU, 8), at least 2)")
	batchCmd.Flags().StringVar(&batchOutDir, "output-dir", "", "directory to write each instance's result.json (default: alongside each input)")
}

type batchOutcome struct {
	path   string
	result cpmp.Result
	err    error
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	cfg := GetConfig()

	poolCfg := parallel.DefaultPoolConfig()
	if batchWorkers > 0 {
		poolCfg = poolCfg.WithWorkers(batchWorkers)
	}
	pool := parallel.NewWorkerPool[string, batchOutcome](poolCfg)

	searchCfg := cpmp.SearchConfig{
		PollInterval:   cfg.Search.PollInterval,
		HeuristicMoves: cfg.Search.HeuristicMoves,
		MaxRelocation:  cfg.Search.MaxRelocation,
	}

	results := pool.ExecuteFunc(context.Background(), args, func(ctx context.Context, path string) (batchOutcome, error) {
		problem, err := cpmp.ParseFileFormat(path, inputFormat)
		if err != nil {
			return batchOutcome{path: path, err: translateParseError(path, err)}, nil
		}
		searcher := cpmp.NewSearcher(problem, searchCfg, nil)
		result, err := searcher.Solve(ctx, time.Duration(timeLimitSec)*time.Second)
		if err != nil {
			return batchOutcome{path: path, err: cpmperrors.InvariantViolation(err.Error())}, nil
		}

		dir := batchOutDir
		if dir == "" {
			dir = filepath.Dir(path)
		}
		out := filepath.Join(dir, filepath.Base(path)+".result.json")
		if err := writeJSONResult(out, problem, result); err != nil {
			return batchOutcome{path: path, err: err}, nil
		}
		return batchOutcome{path: path, result: result}, nil
	})

	failures := 0
	for _, r := range results {
		o := r.Result
		if o.err != nil {
			log.Error("%s: %v", o.path, o.err)
			failures++
			continue
		}
		fmt.Printf("%-40s relocations=%d status=%s nodes=%d\n", o.path, len(o.result.Moves), o.result.Status, o.result.NodesVisited)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d instances failed to solve", failures, len(args))
	}
	return nil
}
