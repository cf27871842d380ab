package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"costalloc/internal/allocation"
	"costalloc/internal/cli"
)

var flagProjects bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the computed worksheet for a period",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVarP(&flagProjects, "projects", "p", false, "Also show funded amounts per project")
	rootCmd.AddCommand(showCmd)
}

func runShow(_ *cobra.Command, _ []string) error {
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
	printWorksheet(ws)
	if flagProjects && len(ws.Projects) > 0 {
		fmt.Print(cli.RenderTable(cli.ProjectsTable(ws)))
		fmt.Println()
	}
	return nil
}

func printWorksheet(ws *allocation.Worksheet) {
	fmt.Println()
	fmt.Println(cli.RenderTitle("COST ALLOCATION"))
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.WorksheetTable(ws)))
	fmt.Printf("  %d visible projects\n\n", len(ws.Projects))
}
