package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanaka-lab/cpmp/internal/cpmperrors"
	"github.com/tanaka-lab/cpmp/internal/repository"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent solve runs recorded via --save-history",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

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

	runs, err := repos.RunHistory.ListRuns(context.Background(), historyLimit)
	if err != nil {
		return cpmperrors.DatabaseError(err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-28s %-10s %6s %10s %10s\n", "run_id", "status", "moves", "nodes", "elapsed_ms")
	for _, r := range runs {
		fmt.Printf("%-28s %-10s %6d %10d %10d\n", r.RunID, r.Status, r.NumRelocation, r.NodesVisited, r.ElapsedMillis)
	}
	return nil
}
