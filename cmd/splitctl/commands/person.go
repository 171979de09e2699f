package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/session"
)

func (c *cli) personCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "person",
		Short: "Add or remove people",
	}

	add := &cobra.Command{
		Use:   "add <group> <name>...",
		Short: "Add one or more people",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd, args[0], func(sess *session.Coordinator, _ *models.Ledger) error {
				for _, name := range args[1:] {
					id, err := sess.AddPerson(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, strings.TrimSpace(name))
				}
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <group> <person>",
		Short: "Remove a person by id or name",
		Long: "Remove a person by id or name. Expenses they paid lose their payer " +
			"and they are dropped from every split.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd, args[0], func(sess *session.Coordinator, l *models.Ledger) error {
				id, err := resolvePerson(l, args[1])
				if err != nil {
					return err
				}
				return sess.RemovePerson(id)
			})
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}
