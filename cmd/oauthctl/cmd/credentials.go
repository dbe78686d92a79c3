package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	soauth "github.com/pilab-dev/shadow-oauth"
)

func newCredentialsCmd(a *app) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:     "credentials",
		Short:   "Maintain stored credentials",
		Aliases: []string{"creds"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.openApp(cmd)
		},
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove credentials that expired more than an hour ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := soauth.NewCleaner(a.backend.Credentials, 0, a.logger).CleanOnce(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d credentials.\n", n)
			return nil
		},
	}

	credentialsCmd.AddCommand(cleanCmd)

	return credentialsCmd
}
