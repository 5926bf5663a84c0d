package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citydrop/dispatch/app"
	"github.com/citydrop/dispatch/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single sweep pass and exit",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	res, err := svc.Manager.Sweep(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("released %d, cancelled %d\n", res.Released, res.Cancelled)
	return nil
}
