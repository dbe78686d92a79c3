// Package cmd implements the oauthctl commands.
package cmd

import (
	"bufio"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/internal/backend"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/services"
)

// AppName is the binary name.
const AppName = "oauthctl"

// app holds what the commands share. Store-backed commands fill it through
// openApp.
type app struct {
	verbose bool
	stdin   *bufio.Reader

	cfg     *config.ServerConfig
	logger  log.Logger
	backend *backend.Backend
	users   *services.UserService
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          AppName,
		Short:        "oauthctl administers a shadow-oauth store",
		Long:         `A command-line interface for managing client and resource owner accounts, cleaning up stale credentials and fetching tokens from a running server.`,
		SilenceUsage: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.backend == nil {
				return nil
			}
			return a.backend.Close(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newUserCmd(a),
		newCredentialsCmd(a),
		newTokenCmd(a),
	)

	return root
}

// openApp loads the server configuration and opens its backend.
func (a *app) openApp(cmd *cobra.Command) error {
	ctx := cmd.Context()

	level := zerolog.WarnLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	a.logger = log.NewWriterLogger(cmd.ErrOrStderr(), level)

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	b, err := backend.Open(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.StoreBackend, err)
	}

	a.cfg = cfg
	a.backend = b
	a.users = services.NewUserService(b.Users, auth.NewBcryptPasswordHasher(bcrypt.DefaultCost))

	return nil
}
