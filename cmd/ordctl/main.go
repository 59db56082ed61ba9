package main

import (
	"fmt"
	"os"

	"backend/internal/apperr"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(apperr.ExitCode(err))
	}
}
