package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/progress"
)

func newAnalyticsCommand(e *env) *cobra.Command {
	var (
		boardID string
		date    string
	)

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print a board's progress snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := e.now().In(e.cfg.Location())
			if strings.TrimSpace(date) != "" {
				parsed, err := blocks.ParseDate(date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = parsed
			}

			ctx := cmd.Context()
			st, closeFn, err := e.openStore(ctx, e.databaseURL)
			if err != nil {
				return err
			}
			defer closeFn()

			board, err := st.GetBoard(ctx, boardID)
			if err != nil {
				return fmt.Errorf("load board %s: %w", boardID, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(progress.Summarize(board, day))
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "", "board id")
	cmd.Flags().StringVar(&date, "date", "", "day to report, defaults to today")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}
