package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/spf13/cobra"
)

func runTicks(cmd *cobra.Command, _ []string) error {
	from, _ := cmd.Flags().GetInt32("from")
	to, _ := cmd.Flags().GetInt32("to")
	step, _ := cmd.Flags().GetInt32("step")
	return printTicks(cmd.OutOrStdout(), from, to, step)
}

// printTicks writes one row per tick in [from, to].
func printTicks(out io.Writer, from, to, step int32) error {
	if step <= 0 {
		return fmt.Errorf("step must be positive, got %d", step)
	}
	if from > to {
		return fmt.Errorf("from %d is after to %d", from, to)
	}

	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "TICK\tSQRT PRICE (Q64.64)\tSQRT PRICE\tPRICE\t")
	fmt.Fprintln(w, "----\t-------------------\t----------\t-----\t")
	for tick := int64(from); tick <= int64(to); tick += int64(step) {
		sqrtPrice, err := tickmath.SqrtPriceAtTick(int32(tick))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n",
			tick,
			sqrtPrice,
			sqrtPrice.Decimal().StringFixed(18),
			sqrtPrice.Price().StringFixed(18),
		)
	}
	return w.Flush()
}
