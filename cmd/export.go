package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/citydrop/dispatch/app"
	"github.com/citydrop/dispatch/config"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/pkg/export"
)

var (
	exportStatus string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export orders by status to stdout",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportStatus, "status", "UNASSIGNED", "order status to export")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := model.ParseStatus(exportStatus)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	orders, err := svc.Orders().ListByStatus(context.Background(), st)
	if err != nil {
		return err
	}
	switch exportFormat {
	case "json":
		return export.WriteJSON(os.Stdout, orders)
	case "csv":
		return export.WriteCSV(os.Stdout, orders)
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}
