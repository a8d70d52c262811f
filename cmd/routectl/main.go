// Package main implements routectl, an offline tool for inspecting routing decisions.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "routectl",
	Short: "Inspect signing-order routing offline",
	Long:  "routectl runs the routing engine against local order and vendor files and prints the state eligibility matrix.",
}

var matrixPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&matrixPath, "matrix", "m", envOr("STATE_MATRIX_PATH", "config/state_matrix.yaml"), "Path to the state eligibility matrix YAML")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
