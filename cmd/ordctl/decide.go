package main

import (
	"fmt"
	"strings"

	"backend/internal/apperr"
	"backend/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	flagDecision string
	flagValue    string
	flagNote     string
	flagBulkIDs  string
)

var decideCmd = &cobra.Command{
	Use:   "decide <entry-id>",
	Short: "Claim and decide one or more queue entries",
	Long: `decide claims the entry for the operator and finalizes it in one step.
With --ids, all listed entries are claimed and decided atomically.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		req := service.DecisionRequest{
			Decision:      strings.ToUpper(flagDecision),
			OverrideValue: flagValue,
			Note:          flagNote,
		}

		if flagBulkIDs != "" {
			var ids []uuid.UUID
			for _, raw := range strings.Split(flagBulkIDs, ",") {
				id, err := uuid.Parse(strings.TrimSpace(raw))
				if err != nil {
					return apperr.Validation("invalid entry id " + raw)
				}
				ids = append(ids, id)
			}

			result, err := a.queue.BulkDecide(cmd.Context(), ids, flagOperator, req)
			if err != nil {
				return err
			}
			fmt.Printf("%d entries decided across %d orders\n", len(result.Decided), result.OrderSets)
			return nil
		}

		if len(args) != 1 {
			return apperr.Validation("an entry id or --ids is required")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return apperr.Validation("invalid entry id " + args[0])
		}

		if err := a.queue.Claim(cmd.Context(), id, flagOperator); err != nil {
			return err
		}
		result, err := a.queue.Decide(cmd.Context(), id, flagOperator, req)
		if err != nil {
			return err
		}

		fmt.Printf("entry %s -> %s (anomaly %s, order %s)\n",
			result.EntryID, result.Status, result.AnomalyState, result.OrderState)
		if result.RulePromoted {
			fmt.Println("pattern promoted to ordinary rule")
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show system counters and pending queue depths",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		stats, err := a.admin.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("orders=%d anomalies=%d rules=%d (promoted %d) operators=%d\n",
			stats.Orders, stats.Anomalies, stats.RulesTotal, stats.RulesPromoted, stats.Operators)
		for kind, n := range stats.PendingByQueue {
			fmt.Printf("  %-10s pending=%d\n", kind, n)
		}
		return nil
	},
}

func init() {
	decideCmd.Flags().StringVar(&flagDecision, "decision", "", "APPROVE, MODIFY or REJECT")
	decideCmd.Flags().StringVar(&flagValue, "value", "", "override value (required for MODIFY)")
	decideCmd.Flags().StringVar(&flagNote, "note", "", "free-form decision note")
	decideCmd.Flags().StringVar(&flagBulkIDs, "ids", "", "comma-separated entry ids for an atomic bulk decision")
	_ = decideCmd.MarkFlagRequired("decision")
}
