package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"notary-signing-router/internal/eligibility"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Print the state eligibility matrix",
	RunE:  runStates,
}

var statesActiveOnly bool

func init() {
	statesCmd.Flags().BoolVar(&statesActiveOnly, "active", false, "Only list states that are currently served")
	rootCmd.AddCommand(statesCmd)
}

func runStates(cmd *cobra.Command, _ []string) error {
	matrix, err := eligibility.LoadFile(matrixPath)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tACTIVE\tRON\tNOTES")
	for _, s := range matrix.States() {
		if statesActiveOnly && !s.Active {
			continue
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%s\n", s.Code, s.Active, s.RONAllowed, s.Notes)
	}
	return tw.Flush()
}
