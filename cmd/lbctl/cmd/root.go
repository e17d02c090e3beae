// Package cmd holds the lbctl operator commands.
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/config"
	"lifeblocks/api/internal/logging"
	"lifeblocks/api/internal/store"
)

// boardStore is the slice of storage the board commands touch.
type boardStore interface {
	GetBoard(ctx context.Context, boardID string) (blocks.Board, error)
	SaveMobileOrder(ctx context.Context, boardID string, order []string) error
}

// env is shared by every subcommand of one invocation.
type env struct {
	cfg         config.Config
	databaseURL string
	logger      *log.Logger
	now         func() time.Time

	openDB    func(ctx context.Context, url string) (*sql.DB, error)
	openStore func(ctx context.Context, url string) (boardStore, func(), error)
}

func defaultOpenStore(ctx context.Context, url string) (boardStore, func(), error) {
	db, err := store.Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

// NewRootCommand builds a fresh lbctl command tree.
func NewRootCommand() *cobra.Command {
	e := &env{openDB: store.Open, openStore: defaultOpenStore, now: time.Now}
	return newRootCommand(e)
}

func newRootCommand(e *env) *cobra.Command {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not read .env:", err)
	}
	e.cfg = config.Load()

	root := &cobra.Command{
		Use:   "lbctl",
		Short: "Operator tooling for the LifeBlocks API",
		Long: `lbctl runs maintenance tasks against the LifeBlocks database.

It applies schema migrations, repairs mobile block orders, and prints the
daily progress snapshot of a board.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			e.logger = logging.NewWithOutput(cmd.ErrOrStderr(), e.cfg.LogLevel, e.cfg.LogFormat, e.cfg.Debug)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&e.databaseURL, "database-url", e.cfg.DatabaseURL, "postgres connection string")

	root.AddCommand(newMigrateCommand(e))
	root.AddCommand(newReconcileCommand(e))
	root.AddCommand(newAnalyticsCommand(e))
	return root
}

// Execute runs lbctl with os.Args.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
