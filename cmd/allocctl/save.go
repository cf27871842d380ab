package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"costalloc/internal/cli"
	"costalloc/internal/services"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Recompute and persist a worksheet as stored",
	Long: "Load the worksheet, recompute it and write the period record,\n" +
		"next-quarter carry-over and project ledgers without editing anything.",
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)
}

func runSave(_ *cobra.Command, _ []string) error {
	p, t, err := target()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ws, err := a.svc.Allocation.Load(ctx, p, t)
	if err != nil {
		return fmt.Errorf("load worksheet: %w", err)
	}
	saved, err := a.svc.Allocation.Save(ctx, ws)
	if err != nil && !services.IsPartialWrite(err) {
		return fmt.Errorf("save: %w", err)
	}
	if err != nil {
		fmt.Println(cli.Warn(err.Error()))
	} else {
		fmt.Println(cli.OK("  saved " + p.Key() + " " + string(t)))
	}
	printWorksheet(saved)
	return nil
}
