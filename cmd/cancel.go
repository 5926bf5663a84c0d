package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citydrop/dispatch/app"
	"github.com/citydrop/dispatch/config"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel an unassigned order",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	res, err := svc.Manager.Cancel(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !res.Cancelled {
		return fmt.Errorf("cancel refused: %s", res.Code)
	}
	fmt.Println("cancelled")
	return nil
}
