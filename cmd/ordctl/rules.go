package main

import (
	"fmt"

	"backend/internal/apperr"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var flagRuleQueue string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage learned ordinary rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		rules, total, err := a.learner.List(cmd.Context(), flagRuleQueue, 1, 100)
		if err != nil {
			return err
		}

		fmt.Printf("%d rules\n", total)
		for _, r := range rules {
			status := "candidate"
			switch {
			case r.RevokedAt != nil:
				status = "revoked"
			case r.Suspended:
				status = "suspended"
			case r.IsOrdinary:
				status = "ordinary"
			}
			fmt.Printf("%s  %-10s %-9s approvals=%d contested=%d  %s\n",
				r.ID, r.QueueKind, status, r.ApprovalCount, r.Contested, r.PatternText)
		}
		return nil
	},
}

var rulesRevokeCmd = &cobra.Command{
	Use:   "revoke <rule-id>",
	Short: "Take a promoted rule out of service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return apperr.Validation("invalid rule id " + args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}

		rule, err := a.learner.Revoke(cmd.Context(), id, flagOperator)
		if err != nil {
			return err
		}

		fmt.Printf("rule %s revoked (queue %s, %d approvals)\n", rule.ID, rule.QueueKind, rule.ApprovalCount)
		return nil
	},
}

func init() {
	rulesListCmd.Flags().StringVar(&flagRuleQueue, "queue", "", "filter by queue kind (AIC, LISTINO, LOOKUP, ESPOSITORE)")
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesRevokeCmd)
}
