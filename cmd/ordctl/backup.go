package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a timestamped JSON snapshot of the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		path, err := a.admin.Backup(cmd.Context(), flagOperator)
		if err != nil {
			return err
		}

		fmt.Println("snapshot written to", path)
		return nil
	},
}
