package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"costalloc/internal/allocation"
	"costalloc/internal/cli"
	"costalloc/internal/core"
	"costalloc/internal/services"
)

var flagDryRun bool

var setCmd = &cobra.Command{
	Use:   "set CATEGORY FIELD VALUE",
	Short: "Edit pct or carryOverIn of a category and save",
	Long: "Edit one input of a standard row, recompute the worksheet and save it.\n" +
		"FIELD is pct or carryOverIn. A value that is not a number is stored as zero.",
	Args: cobra.ExactArgs(3),
	RunE: runSet,
}

func init() {
	setCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Recompute and print without saving")
	rootCmd.AddCommand(setCmd)
}

func runSet(_ *cobra.Command, args []string) error {
	p, t, err := target()
	if err != nil {
		return err
	}
	field, err := allocation.ParseField(args[1])
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

	sess, err := a.svc.Sessions.Open(ctx, p, t)
	if err != nil {
		return fmt.Errorf("open worksheet: %w", err)
	}
	defer a.svc.Sessions.Close(sess.ID)

	row, err := a.svc.Sessions.Edit(ctx, sess.ID, args[0], field, args[2])
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		fmt.Println(cli.Warn(verr.Error()))
	case err != nil:
		return err
	}
	fmt.Printf("  %s %s = %s\n", row.Cat.Label, field, allocation.FieldValue(row, field))

	if flagDryRun {
		printWorksheet(sess.Snapshot())
		return nil
	}

	saved, err := a.svc.Sessions.Save(ctx, sess.ID)
	switch {
	case services.IsPartialWrite(err):
		fmt.Println(cli.Warn(err.Error()))
	case err != nil:
		return fmt.Errorf("save: %w", err)
	default:
		fmt.Println(cli.OK("  saved " + saved.Period.Key() + " " + string(saved.Type)))
	}
	printWorksheet(saved)
	return nil
}
