package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/db"
	"github.com/docsentry/docsentry/internal/identity"
)

var userName string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users and their roles",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <id> <role>",
	Short: "Register a user or change their role",
	Long:  `Registers a user with one of the roles Employee, Manager, or Admin. Adding an existing user updates their role.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := access.ParseRole(args[1])
		if err != nil {
			return err
		}

		store, database, err := openUserStore()
		if err != nil {
			return err
		}
		defer database.Close()

		user, err := store.Add(context.Background(), args[0], userName, role)
		if err != nil {
			return err
		}
		fmt.Printf("User %s registered with role %s\n", user.ID, user.Role)
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openUserStore()
		if err != nil {
			return err
		}
		defer database.Close()

		users, err := store.List(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Role, u.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a registered user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openUserStore()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := store.Remove(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("User %s removed\n", args[0])
		return nil
	},
}

func openUserStore() (*identity.Store, *db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(filepath.Join(cfg.DataDir, "docsentry.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return identity.NewStore(database), database, nil
}

func init() {
	usersAddCmd.Flags().StringVar(&userName, "name", "", "display name for the user")
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersRemoveCmd)
	rootCmd.AddCommand(usersCmd)
}
