package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanaka-lab/cpmp/internal/cpmp"
	"github.com/tanaka-lab/cpmp/internal/cpmp/logutil"
	"github.com/tanaka-lab/cpmp/internal/cpmperrors"
	"github.com/tanaka-lab/cpmp/internal/repository"
	"github.com/tanaka-lab/cpmp/internal/storage"
	"github.com/tanaka-lab/cpmp/pkg/compression"
	"github.com/tanaka-lab/cpmp/pkg/config"
	"github.com/tanaka-lab/cpmp/pkg/model"
	"github.com/tanaka-lab/cpmp/pkg/writer"
)

var (
	inputFile      string
	outputFile     string
	showSolution   bool
	showRelocation bool
	timeLimitSec   int
	boundEngine    string
	dominanceMode  string
	inputFormat    string
	stackOverride  int
	heightOverride int
	extraTiers     int
	pureBB         bool
	saveHistory    bool
	archiveInput   bool
	runID          string
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a premarshalling instance",
	Long: `Solve reads a yard layout, runs the branch-and-bound search to
completion or until the time limit elapses, and writes the relocation
sequence as both a diagnostic stream and a JSON result file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSolve,
}

func init() {
	rootCmd.AddCommand(solveCmd)

	binName := BinName()
	solveCmd.Example = `  # Solve, printing the compact relocation list
  ` + binName + ` solve -i yard.txt -S

  # Solve with a 30-second time budget, printing full solution states
  ` + binName + ` solve -i yard.txt -T 30 -s

  # Solve and record the run in the history database
  ` + binName + ` solve -i yard.txt --save-history`

	solveCmd.Flags().StringVarP(&inputFile, "input", "i", "", "input instance file (default: positional argument, then stdin)")
	solveCmd.Flags().StringVarP(&outputFile, "output", "o", "", "JSON result file (default ./output/<run-id>/result.json)")
	solveCmd.Flags().BoolVarP(&showSolution, "show-solution", "s", false, "print the replayed solution state-by-state")
	solveCmd.Flags().BoolVarP(&showRelocation, "show-relocations", "S", false, "print the compact relocation list")
	solveCmd.Flags().IntVarP(&timeLimitSec, "time-limit", "T", 0, "CPU-time budget in seconds (0 = unlimited)")
	solveCmd.Flags().StringVarP(&boundEngine, "bound-engine", "E", "primary", "primary (default) or secondary lower bound")
	solveCmd.Flags().StringVar(&dominanceMode, "dominance", "index-sweep", "index-sweep (default) or type1-table")
	solveCmd.Flags().StringVarP(&inputFormat, "input-format", "t", "auto", "auto (default), a, or b")
	solveCmd.Flags().IntVar(&stackOverride, "stacks", 0, "pad the yard with empty stacks up to this count (larger of flag and input wins)")
	solveCmd.Flags().IntVar(&heightOverride, "height", 0, "override the stack height (larger of flag and input wins)")
	solveCmd.Flags().IntVar(&extraTiers, "extra-tiers", 0, "add empty tiers on top of the resolved height")
	solveCmd.Flags().BoolVar(&pureBB, "pure-bb", false, "single branch-and-bound pass instead of iterative deepening")
	solveCmd.Flags().BoolVar(&saveHistory, "save-history", false, "record this run in the run-history database")
	solveCmd.Flags().BoolVar(&archiveInput, "archive", false, "archive the input instance and result via the configured storage backend")
	solveCmd.Flags().StringVar(&runID, "run-id", "", "run identifier used for history/storage/output paths (default: generated from the current time)")
}

func runSolve(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	cfg := GetConfig()

	engine, dominance, err := resolveEngineFlags(boundEngine, dominanceMode)
	if err != nil {
		return err
	}

	id := runID
	if id == "" {
		id = fmt.Sprintf("run-%d", time.Now().UnixNano())
	}

	out := outputFile
	if out == "" {
		out = filepath.Join(cfg.Search.DataDir, id, "result.json")
	}

	path := inputFile
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	inputName := path
	if inputName == "" {
		inputName = "stdin"
	}

	log.Info("=== cpmp solve ===")
	log.Info("input:        %s", inputName)
	log.Info("output:       %s", out)
	log.Info("bound engine: %s", boundEngine)
	log.Info("dominance:    %s", dominanceMode)
	log.Info("run id:       %s", id)

	problem, err := loadInstance(path)
	if err != nil {
		return err
	}
	if problem.NumBlock == 0 {
		return cpmperrors.EmptyFile()
	}

	searchLog := logutil.SearchLogger(log, id, problem.NumStack, problem.StackHeight, problem.NumBlock)
	searchLog.Debug("parsed instance: %d blocks across %d stacks", problem.NumBlock, problem.NumStack)

	searchCfg := cpmp.SearchConfig{
		PollInterval:       cfg.Search.PollInterval,
		HeuristicMoves:     cfg.Search.HeuristicMoves,
		MaxRelocation:      cfg.Search.MaxRelocation,
		BoundEngine:        engine,
		Dominance:          dominance,
		PureBranchAndBound: pureBB,
		Logger:             searchLog,
	}
	searcher := cpmp.NewSearcher(problem, searchCfg, nil)

	limit := time.Duration(timeLimitSec) * time.Second
	start := time.Now()
	result, err := searcher.Solve(context.Background(), limit)
	if err != nil {
		return cpmperrors.InvariantViolation(err.Error())
	}

	switch result.Status {
	case cpmp.StatusTimeLimit:
		searchLog.Info("time limit reached after %s; best found: %d relocations", time.Since(start), len(result.Moves))
	case cpmp.StatusInfeasible:
		searchLog.Info("no feasible solution within %d relocations", searchCfg.MaxRelocation)
	default:
		searchLog.Info("optimal solution: %d relocations, %d nodes, %s", len(result.Moves), result.NodesVisited, result.Elapsed)
	}

	printSolve(problem, result)

	if err := writeJSONResult(out, problem, result); err != nil {
		return err
	}
	log.Debug("wrote result to %s", out)

	if saveHistory {
		if err := persistHistory(context.Background(), cfg, id, path, problem, result); err != nil {
			log.Warn("failed to save run history: %v", err)
		}
	}

	if archiveInput {
		if err := archiveRun(context.Background(), cfg, id, path, out); err != nil {
			log.Warn("failed to archive run: %v", err)
		}
	}

	return nil
}

func printSolve(problem *cpmp.Problem, result cpmp.Result) {
	if showSolution {
		replay := cpmp.NewState(problem)
		cpmp.PrintState(os.Stdout, problem, replay)
		for i, mv := range result.Moves {
			replay.ApplyMove(problem, i, mv)
			fmt.Fprintf(os.Stdout, "--- move %d: %d -> %d ---\n", i+1, mv.Src, mv.Dst)
			cpmp.PrintState(os.Stdout, problem, replay)
		}
	}
	if showRelocation {
		cpmp.PrintResult(os.Stdout, result)
	}
	if !showSolution && !showRelocation {
		if len(result.Moves) == 0 && result.Status == cpmp.StatusOptimal {
			fmt.Fprintln(os.Stdout, "No relocations required.")
		} else {
			fmt.Fprintf(os.Stdout, "relocations=%d status=%s nodes=%d elapsed=%s\n",
				len(result.Moves), result.Status, result.NodesVisited, result.Elapsed)
		}
	}
}

// resolveEngineFlags maps the textual flag values onto the solver's
// configuration enums.
func resolveEngineFlags(engine, dominance string) (cpmp.BoundEngine, cpmp.DominanceFamily, error) {
	var be cpmp.BoundEngine
	switch strings.ToLower(engine) {
	case "primary":
		be = cpmp.BoundEnginePrimary
	case "secondary":
		be = cpmp.BoundEngineSecondary
	default:
		return 0, 0, cpmperrors.ConfigError(fmt.Sprintf("unknown bound engine: %q (valid: primary, secondary)", engine))
	}
	var df cpmp.DominanceFamily
	switch strings.ToLower(dominance) {
	case "index-sweep":
		df = cpmp.DominanceIndexSweep
	case "type1-table":
		df = cpmp.DominanceType1
	case "none":
		df = cpmp.DominanceNone
	default:
		return 0, 0, cpmperrors.ConfigError(fmt.Sprintf("unknown dominance mode: %q (valid: index-sweep, type1-table, none)", dominance))
	}
	return be, df, nil
}

// loadInstance parses the instance at path, or standard input when path is
// empty, with the dimension overrides applied.
func loadInstance(path string) (*cpmp.Problem, error) {
	opts := cpmp.ParseOptions{
		NumStack:    stackOverride,
		StackHeight: heightOverride,
		ExtraTiers:  extraTiers,
	}
	if path == "" {
		problem, err := cpmp.ParseReaderOptions(os.Stdin, inputFormat, opts)
		if err != nil {
			return nil, translateParseError("stdin", err)
		}
		return problem, nil
	}
	problem, err := cpmp.ParseFileOptions(path, inputFormat, opts)
	if err != nil {
		return nil, translateParseError(path, err)
	}
	return problem, nil
}

func translateParseError(path string, err error) error {
	if _, ok := err.(*cpmp.ValidationError); ok {
		return cpmperrors.InvalidInput(err.Error())
	}
	if os.IsNotExist(err) {
		return cpmperrors.InvalidInput(fmt.Sprintf("input file not found: %s", path))
	}
	return cpmperrors.ParseError(fmt.Sprintf("failed to parse %s", path), err)
}

// resultJSON is the JSON result shape written to --output.
type resultJSON struct {
	Status        string           `json:"status"`
	NumRelocation int              `json:"num_relocation"`
	Relocations   []relocationJSON `json:"relocations"`
	ElapsedMillis int64            `json:"elapsed_ms"`
	NodesVisited  int64            `json:"nodes_visited"`
}

type relocationJSON struct {
	Src      int `json:"src"`
	Dst      int `json:"dst"`
	Priority int `json:"priority"`
}

func writeJSONResult(path string, problem *cpmp.Problem, result cpmp.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return cpmperrors.ConfigError(fmt.Sprintf("failed to create output directory: %v", err))
	}

	replay := cpmp.NewState(problem)
	relocations := make([]relocationJSON, len(result.Moves))
	for i, mv := range result.Moves {
		top := replay.Stack[mv.Src][len(replay.Stack[mv.Src])-1]
		relocations[i] = relocationJSON{Src: mv.Src, Dst: mv.Dst, Priority: problem.Priority[top]}
		replay.ApplyMove(problem, i, mv)
	}

	out := resultJSON{
		Status:        result.Status.String(),
		NumRelocation: len(result.Moves),
		Relocations:   relocations,
		ElapsedMillis: result.Elapsed.Milliseconds(),
		NodesVisited:  result.NodesVisited,
	}

	w := writer.NewPrettyJSONWriter[resultJSON]()
	if err := w.WriteToFile(out, path); err != nil {
		return cpmperrors.ConfigError(fmt.Sprintf("failed to write result file: %v", err))
	}
	return nil
}

// persistHistory records the run in the configured run-history database,
// defaulting to a local sqlite file so --save-history works without any
// external database.
func persistHistory(ctx context.Context, cfg *config.Config, id, inputPath string, problem *cpmp.Problem, result cpmp.Result) error {
	db, err := repository.NewGormDB(&repository.DBConfig{
		Type:     cfg.Database.Type,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return cpmperrors.DatabaseError(err)
	}

	repos, err := repository.NewRepositories(db, cfg.Database.Type)
	if err != nil {
		return cpmperrors.DatabaseError(err)
	}
	defer repos.Close()

	req := &model.SolveRequest{
		RunID:          id,
		InputPath:      inputPath,
		NumStack:       problem.NumStack,
		StackHeight:    problem.StackHeight,
		NumBlock:       problem.NumBlock,
		TimeLimitSec:   timeLimitSec,
		HeuristicMoves: cfg.Search.HeuristicMoves,
		SubmittedAt:    time.Now().UTC(),
	}
	res := &model.SolveResult{
		RunID:         id,
		Status:        result.Status.String(),
		NumRelocation: len(result.Moves),
		NodesVisited:  result.NodesVisited,
		ElapsedMillis: result.Elapsed.Milliseconds(),
		CompletedAt:   time.Now().UTC(),
	}
	for i, mv := range result.Moves {
		res.Relocations = append(res.Relocations, model.Relocation{Sequence: i + 1, Src: mv.Src, Dst: mv.Dst})
	}

	return repos.RunHistory.SaveRun(ctx, req, res)
}

// archiveRun uploads the input instance and the JSON result to the
// configured storage backend (local disk by default, Tencent COS when
// configured), keyed by run id. The result is gzip-compressed before
// upload since result files accumulate quickly under --save-history and
// compress well (mostly repeated small-integer relocation records).
func archiveRun(ctx context.Context, cfg *config.Config, id, inputPath, outputPath string) error {
	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return cpmperrors.StorageError(err)
	}

	if inputPath != "" {
		if err := store.UploadFile(ctx, filepath.Join(id, "input"+filepath.Ext(inputPath)), inputPath); err != nil {
			return cpmperrors.StorageError(err)
		}
	}

	raw, err := os.ReadFile(outputPath)
	if err != nil {
		return cpmperrors.StorageError(err)
	}
	compressed, err := compression.Default().Compress(raw)
	if err != nil {
		return cpmperrors.StorageError(err)
	}
	if err := store.Upload(ctx, filepath.Join(id, "result.json.gz"), bytes.NewReader(compressed)); err != nil {
		return cpmperrors.StorageError(err)
	}
	return nil
}
