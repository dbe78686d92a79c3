package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// userView is the printed form of a domain.User.
type userView struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	CreatedAt string `yaml:"created_at"`
}

func viewOf(u domain.User) userView {
	return userView{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")}
}

func newUserCmd(a *app) *cobra.Command {
	userCmd := &cobra.Command{
		Use:     "user",
		Short:   "Manage client and resource owner accounts",
		Aliases: []string{"users"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.openApp(cmd)
		},
	}

	var password string
	addCmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = a.readPassword(cmd, "Enter password: ", true); err != nil {
					return err
				}
			}

			user, err := a.users.CreateUser(cmd.Context(), args[0], password)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			out, err := yaml.Marshal(viewOf(user))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))

			return nil
		},
	}
	addCmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.users.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}

			views := make([]userView, 0, len(users))
			for _, u := range users {
				views = append(views, viewOf(u))
			}

			out, err := yaml.Marshal(views)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))

			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}

			if err := a.users.DeleteUser(cmd.Context(), id); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("user %d not found", id)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User %d deleted.\n", id)
			return nil
		},
	}

	userCmd.AddCommand(addCmd, listCmd, deleteCmd)

	return userCmd
}
