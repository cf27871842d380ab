package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"costalloc/internal/cli"
	"costalloc/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load categories, projects, financials and ledgers from a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

var budgetCmd = &cobra.Command{
	Use:   "budget CATEGORY AMOUNT",
	Short: "Set the approved budget of a category for a period",
	Args:  cobra.ExactArgs(2),
	RunE:  runBudget,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(budgetCmd)
}

func runSeed(_ *cobra.Command, args []string) error {
	seed, err := config.LoadSeed(args[0])
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

	if err := seed.Apply(ctx, a.backend.Store); err != nil {
		return err
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Seeded " + args[0],
		Headers: []string{"Kind", "Count"},
		Rows: [][]string{
			{"categories", fmt.Sprint(len(seed.Categories))},
			{"projects", fmt.Sprint(len(seed.Projects))},
			{"financials", fmt.Sprint(len(seed.Financials))},
			{"fixed costs", fmt.Sprint(len(seed.FixedCosts))},
			{"budgets", fmt.Sprint(len(seed.Budgets))},
			{"ledgers", fmt.Sprint(len(seed.Ledgers))},
		},
	}))
	return nil
}

func runBudget(_ *cobra.Command, args []string) error {
	p, t, err := target()
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[1])
	}
	if amount.IsNegative() {
		return fmt.Errorf("amount must not be negative")
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.backend.Store.PutApprovedBudget(ctx, p, t, args[0], amount); err != nil {
		return err
	}
	fmt.Println(cli.OK(fmt.Sprintf("  %s %s %s budget = %s", p.Key(), t, args[0], cli.FormatAmount(amount))))
	return nil
}
