package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/session"
)

func (c *cli) expenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Record and edit expenses",
	}
	cmd.AddCommand(c.expenseAddCmd(), c.expenseEditCmd(), c.expenseSplitCmd(), c.expenseRmCmd())
	return cmd
}

func (c *cli) expenseAddCmd() *cobra.Command {
	var (
		name   string
		amount string
		paidBy string
		split  []string
	)
	cmd := &cobra.Command{
		Use:   "add <group>",
		Short: "Record an expense",
		Long: "Record an expense. The payer defaults to the first person and the " +
			"expense is split among everyone unless --split is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := models.ParseAmount(amount)
			if err != nil {
				return err
			}
			return c.edit(cmd, args[0], func(sess *session.Coordinator, l *models.Ledger) error {
				in := session.ExpenseInput{Name: name, Amount: value}
				if paidBy != "" {
					if in.PaidBy, err = resolvePerson(l, paidBy); err != nil {
						return err
					}
				}
				if in.SplitAmong, err = resolvePeople(l, split); err != nil {
					return err
				}
				id, err := sess.AddExpense(in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "what the expense was for")
	cmd.Flags().StringVar(&amount, "amount", "", "total amount paid")
	cmd.Flags().StringVar(&paidBy, "paid-by", "", "payer id or name")
	cmd.Flags().StringSliceVar(&split, "split", nil, "people sharing the expense (comma separated ids or names)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (c *cli) expenseEditCmd() *cobra.Command {
	var (
		name   string
		amount string
		paidBy string
		split  []string
	)
	cmd := &cobra.Command{
		Use:   "edit <group> <expense>",
		Short: "Change fields of an expense",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			return c.edit(cmd, args[0], func(sess *session.Coordinator, l *models.Ledger) error {
				var patch session.ExpensePatch
				if flags.Changed("name") {
					patch.Name = &name
				}
				if flags.Changed("amount") {
					value, err := models.ParseAmount(amount)
					if err != nil {
						return err
					}
					patch.Amount = &value
				}
				if flags.Changed("paid-by") {
					id, err := resolvePerson(l, paidBy)
					if err != nil {
						return err
					}
					patch.PaidBy = &id
				}
				if flags.Changed("split") {
					ids, err := resolvePeople(l, split)
					if err != nil {
						return err
					}
					patch.SplitAmong = &ids
				}
				return sess.UpdateExpense(args[1], patch)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new description")
	cmd.Flags().StringVar(&amount, "amount", "", "new total amount")
	cmd.Flags().StringVar(&paidBy, "paid-by", "", "new payer id or name")
	cmd.Flags().StringSliceVar(&split, "split", nil, "new set of people sharing the expense")
	return cmd
}

// split <group> <expense> <person>: toggle one person in or out of an expense.
func (c *cli) expenseSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split <group> <expense> <person>",
		Short: "Add a person to an expense split, or remove them if already in it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd, args[0], func(sess *session.Coordinator, l *models.Ledger) error {
				id, err := resolvePerson(l, args[2])
				if err != nil {
					return err
				}
				return sess.TogglePersonInExpense(args[1], id)
			})
		},
	}
}

func (c *cli) expenseRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <group> <expense>",
		Short: "Delete an expense",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd, args[0], func(sess *session.Coordinator, _ *models.Ledger) error {
				return sess.RemoveExpense(args[1])
			})
		},
	}
}
