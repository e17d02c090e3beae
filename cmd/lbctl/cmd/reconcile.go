package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lifeblocks/api/internal/mobileorder"
)

func newReconcileCommand(e *env) *cobra.Command {
	var (
		boardID string
		apply   bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair a board's mobile block order",
		Long: `Reconcile compares the stored mobile order of a board with its blocks.
Stale ids are dropped, duplicates collapse to their first position, and
missing blocks are appended in reading order.

Without --apply the repaired order is only printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			order, changed := mobileorder.Reconcile(board.Blocks, board.MobileOrder)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stored:     %s\n", strings.Join(board.MobileOrder, ","))
			fmt.Fprintf(out, "reconciled: %s\n", strings.Join(order, ","))
			if !changed {
				fmt.Fprintln(out, "order is consistent")
				return nil
			}
			if !apply {
				fmt.Fprintln(out, "order differs, rerun with --apply to save it")
				return nil
			}
			if err := st.SaveMobileOrder(ctx, boardID, order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
			e.logger.WithField("board", boardID).Info("mobile order repaired")
			fmt.Fprintln(out, "order saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "", "board id")
	cmd.Flags().BoolVar(&apply, "apply", false, "save the reconciled order")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}
