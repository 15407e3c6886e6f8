package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	planService "funnel_backend/internals/features/funnel/plans/service"
)

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the price table",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PLAN\tPERIODICITY\tVALUE\tDISPLAY")
			for _, p := range planService.Table() {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", p.ID, p.Periodicity, p.Value, p.DisplayValue)
			}
			return w.Flush()
		},
	}
}
