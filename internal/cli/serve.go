package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanaka-lab/cpmp/internal/cpmp"
	"github.com/tanaka-lab/cpmp/internal/cpmperrors"
	"github.com/tanaka-lab/cpmp/internal/repository"
	"github.com/tanaka-lab/cpmp/internal/server"
)

var (
	serveAddr    string
	serveHistory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP JSON API",
	Long: `Serve starts an HTTP server exposing the same solver over a JSON API
for programmatic or remote callers: POST /solve to run an instance, GET
/runs to list recorded history (with --with-history), and GET /healthz.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	binName := BinName()
	serveCmd.Example = `  # Start the API on the default address
  ` + binName + ` serve

  # Start the API with run history enabled
  ` + binName + ` serve --addr :9090 --with-history`

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&serveHistory, "with-history", false, "record every solved request in the run-history database")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	cfg := GetConfig()

	var history repository.RunHistoryRepository
	if serveHistory {
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
		history = repos.RunHistory
	}

	searchCfg := cpmp.SearchConfig{
		PollInterval:   cfg.Search.PollInterval,
		HeuristicMoves: cfg.Search.HeuristicMoves,
		MaxRelocation:  cfg.Search.MaxRelocation,
	}

	srv := server.New(serveAddr, log, searchCfg, history)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
