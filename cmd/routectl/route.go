package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"notary-signing-router/internal/domain"
	"notary-signing-router/internal/eligibility"
	"notary-signing-router/internal/logging"
	"notary-signing-router/internal/routing"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route one order against a vendor roster file",
	Long:  "Loads a SigningOrder JSON file and a JSON array of vendors, runs the routing engine and prints the decision as JSON.",
	RunE:  runRoute,
}

var (
	routeOrderFile   string
	routeVendorsFile string
	routeRadius      float64
	routeVerbose     bool
)

func init() {
	routeCmd.Flags().StringVarP(&routeOrderFile, "order", "o", "", "Path to SigningOrder JSON file (required)")
	routeCmd.Flags().StringVarP(&routeVendorsFile, "vendors", "v", "", "Path to vendor roster JSON array (required)")
	routeCmd.Flags().Float64Var(&routeRadius, "radius", routing.DefaultServiceRadiusMiles, "Service radius in miles for travel signings")
	routeCmd.Flags().BoolVar(&routeVerbose, "verbose", false, "Log engine warnings to stderr")
	_ = routeCmd.MarkFlagRequired("order")
	_ = routeCmd.MarkFlagRequired("vendors")

	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, _ []string) error {
	matrix, err := eligibility.LoadFile(matrixPath)
	if err != nil {
		return err
	}

	var order domain.SigningOrder
	if err := readJSONFile(routeOrderFile, &order); err != nil {
		return err
	}
	var vendors []domain.Vendor
	if err := readJSONFile(routeVendorsFile, &vendors); err != nil {
		return err
	}

	logger := zap.NewNop()
	if routeVerbose {
		if logger, err = logging.New("development", "warn"); err != nil {
			return err
		}
	}

	engine, err := routing.NewEngine(matrix, routing.WithServiceRadius(routeRadius), routing.WithLogger(logger))
	if err != nil {
		return err
	}
	decision, err := engine.Route(order, vendors)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(decision)
}

func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
