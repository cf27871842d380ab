package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"costalloc/internal/cli"
)

var cascadeCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Propagate overruns into the following quarters of the year",
	RunE:  runCascade,
}

func init() {
	rootCmd.AddCommand(cascadeCmd)
}

func runCascade(_ *cobra.Command, _ []string) error {
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

	written, err := a.svc.Cascade.Cascade(ctx, p, t)
	if err != nil {
		return fmt.Errorf("cascade from %s: %w", p.Key(), err)
	}
	if len(written) == 0 {
		fmt.Println("  nothing to propagate from " + p.Key())
		return nil
	}

	tbl := cli.Table{Title: "Cascade from " + p.Key(), Headers: []string{"Period", "Type"}}
	for _, w := range written {
		tbl.Rows = append(tbl.Rows, []string{w.Key(), string(t)})
	}
	fmt.Print(cli.RenderTable(tbl))
	return nil
}
