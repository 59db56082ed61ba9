package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagConfirm string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe all ingested data (rules, master data and the activity log survive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		counts, err := a.admin.Reset(cmd.Context(), flagOperator, flagConfirm)
		if err != nil {
			return err
		}

		fmt.Printf("reset complete: %d acquisitions, %d orders, %d lines, %d anomalies, %d queue entries removed\n",
			counts.Acquisitions, counts.Orders, counts.Lines, counts.Anomalies, counts.SupervisionEntries)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&flagConfirm, "confirm", "", "confirmation phrase (RESET_COMPLETO)")
}
