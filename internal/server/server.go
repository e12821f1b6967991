// Package server implements the HTTP JSON API exposed by "cpmp serve",
// giving programmatic callers the same solver cmd/cpmp drives.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tanaka-lab/cpmp/internal/cpmp"
	"github.com/tanaka-lab/cpmp/internal/cpmperrors"
	"github.com/tanaka-lab/cpmp/internal/repository"
	"github.com/tanaka-lab/cpmp/pkg/model"
	"github.com/tanaka-lab/cpmp/pkg/utils"
)

// Server is the HTTP JSON API front-end for the solver.
type Server struct {
	addr    string
	logger  utils.Logger
	config  cpmp.SearchConfig
	history repository.RunHistoryRepository
	server  *http.Server
}

// New builds a Server listening on addr. history may be nil, in which case
// /runs and the history-save path of /solve are disabled.
func New(addr string, logger utils.Logger, config cpmp.SearchConfig, history repository.RunHistoryRepository) *Server {
	return &Server{addr: addr, logger: logger, config: config, history: history}
}

// Start blocks serving HTTP until the server is shut down or fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/solve", s.handleSolve)
	mux.HandleFunc("/runs", s.handleListRuns)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	s.logger.Info("cpmp serve listening on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// solveRequest is the JSON body accepted by POST /solve: a yard of stacks
// bottom-to-top, mirroring the textual format's semantics.
type solveRequest struct {
	Stacks      [][]int `json:"stacks"`
	StackHeight int     `json:"stack_height"`
	TimeLimitMs int64   `json:"time_limit_ms"`
}

// solveResponse is §6.3's JSON result shape.
type solveResponse struct {
	Status        string       `json:"status"`
	NumRelocation int          `json:"num_relocation"`
	Relocations   []relocation `json:"relocations"`
	ElapsedMillis int64        `json:"elapsed_ms"`
	NodesVisited  int64        `json:"nodes_visited"`
}

type relocation struct {
	Src      int `json:"src"`
	Dst      int `json:"dst"`
	Priority int `json:"priority"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, cpmperrors.InvalidInput(fmt.Sprintf("malformed request body: %v", err)))
		return
	}

	problem, err := cpmp.NewProblem(req.Stacks, req.StackHeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, cpmperrors.InvalidInput(err.Error()))
		return
	}

	state := cpmp.NewState(problem)
	searcher := cpmp.NewSearcher(problem, s.config, nil)

	timeLimit := time.Duration(req.TimeLimitMs) * time.Millisecond
	result, err := searcher.Solve(r.Context(), timeLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, cpmperrors.InvariantViolation(err.Error()))
		return
	}

	relocations := make([]relocation, len(result.Moves))
	for i, mv := range result.Moves {
		relocations[i] = relocation{Src: mv.Src, Dst: mv.Dst, Priority: topPriority(problem, state, mv.Src)}
		state.ApplyMove(problem, i, mv)
	}

	resp := solveResponse{
		Status:        result.Status.String(),
		NumRelocation: len(result.Moves),
		Relocations:   relocations,
		ElapsedMillis: result.Elapsed.Milliseconds(),
		NodesVisited:  result.NodesVisited,
	}

	if s.history != nil {
		s.saveHistory(r.Context(), problem, result)
	}

	writeJSON(w, http.StatusOK, resp)
}

func topPriority(problem *cpmp.Problem, state *cpmp.State, stack int) int {
	blocks := state.Stack[stack]
	if len(blocks) == 0 {
		return -1
	}
	return problem.Priority[blocks[len(blocks)-1]]
}

func (s *Server) saveHistory(ctx context.Context, problem *cpmp.Problem, result cpmp.Result) {
	now := time.Now().UTC()
	req := &model.SolveRequest{
		RunID:       fmt.Sprintf("api-%d", now.UnixNano()),
		NumStack:    problem.NumStack,
		StackHeight: problem.StackHeight,
		NumBlock:    problem.NumBlock,
		SubmittedAt: now,
	}
	res := &model.SolveResult{
		RunID:         req.RunID,
		Status:        result.Status.String(),
		NumRelocation: len(result.Moves),
		NodesVisited:  result.NodesVisited,
		ElapsedMillis: result.Elapsed.Milliseconds(),
		CompletedAt:   time.Now().UTC(),
	}
	for i, mv := range result.Moves {
		res.Relocations = append(res.Relocations, model.Relocation{Sequence: i + 1, Src: mv.Src, Dst: mv.Dst})
	}
	if err := s.history.SaveRun(ctx, req, res); err != nil {
		s.logger.Warn("failed to save run history: %v", err)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "run history is not configured", http.StatusNotImplemented)
		return
	}
	runs, err := s.history.ListRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, cpmperrors.InvariantViolation(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err *cpmperrors.SolverError) {
	writeJSON(w, status, map[string]string{"code": err.Code, "message": err.Message})
}
