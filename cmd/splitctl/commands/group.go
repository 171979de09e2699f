package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsync/internal/calculator"
	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/session"
)

// new: create an empty group and print its id.
func (c *cli) newCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.openSession(cmd.Context(), "", session.WithGroupName(name))
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Fprintln(cmd.OutOrStdout(), sess.GroupID())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "group name (default "+models.DefaultGroupName+")")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <group>",
		Short: "Print people, expenses and totals of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			l := sess.Snapshot()
			out := cmd.OutOrStdout()
			printLedger(out, args[0], l, c.cfg.Display.Currency)
			fmt.Fprintln(out)
			printSettlements(out, l, sess.Settlements(), c.cfg.Display.Currency)
			return nil
		},
	}
}

func (c *cli) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <group> <name>",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd, args[0], func(sess *session.Coordinator, _ *models.Ledger) error {
				return sess.RenameGroup(args[1])
			})
		},
	}
}

// watch <group>: print settlements every time the group changes, until interrupted.
func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <group>",
		Short: "Follow a group and print settlements on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			currency := c.cfg.Display.Currency

			sess, err := c.openSession(cmd.Context(), args[0],
				session.OnChange(func(l *models.Ledger) {
					fmt.Fprintf(out, "--- %s (updated %d)\n", l.GroupName, l.UpdatedAt)
					printSettlements(out, l, calculator.Settle(l), currency)
				}),
				session.OnError(func(err error) {
					slog.Warn("Sync problem", "group_id", args[0], "error", err)
				}),
			)
			if err != nil {
				return err
			}
			defer sess.Close()

			<-cmd.Context().Done()
			return nil
		},
	}
}
