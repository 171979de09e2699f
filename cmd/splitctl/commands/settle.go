package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsync/internal/calculator"
	"github.com/mmynk/splitsync/internal/models"
)

func (c *cli) settleCmd() *cobra.Command {
	var (
		greedy    bool
		person    string
		direction string
	)
	cmd := &cobra.Command{
		Use:   "settle <group>",
		Short: "List the transfers that settle a group",
		Long: "List the transfers that settle a group. By default debts are netted per " +
			"pair of people; --greedy matches the largest debtor with the largest creditor instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := calculator.ParseDirection(direction)
			if string(dir) != direction {
				return models.NewValidationError("direction", "want all, from or to, got %q", direction)
			}

			sess, err := c.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			l := sess.Snapshot()
			var settlements []models.Settlement
			if greedy {
				settlements = calculator.SettleGreedy(l)
			} else {
				settlements = sess.Settlements()
			}

			if person != "" {
				id, err := resolvePerson(l, person)
				if err != nil {
					return err
				}
				settlements = calculator.Filter(settlements, id, dir)
			}

			out := cmd.OutOrStdout()
			printSettlements(out, l, settlements, c.cfg.Display.Currency)
			if person == "" {
				fmt.Fprintln(out)
				for _, b := range calculator.NetBalances(l) {
					fmt.Fprintf(out, "  %-20s %12s\n", displayName(l, b.PersonID), formatAmount(b.NetBalance, c.cfg.Display.Currency))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&greedy, "greedy", false, "match largest debtor with largest creditor")
	cmd.Flags().StringVar(&person, "person", "", "only show transfers involving this person")
	cmd.Flags().StringVar(&direction, "direction", "all", "with --person: all, from (they pay) or to (they receive)")
	return cmd
}
