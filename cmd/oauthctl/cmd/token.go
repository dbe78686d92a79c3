package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pilab-dev/shadow-oauth/oauthclient"
)

type tokenView struct {
	AccessToken  string `yaml:"access_token"`
	TokenType    string `yaml:"token_type"`
	RefreshToken string `yaml:"refresh_token"`
	Expiry       string `yaml:"expiry"`
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		cfg       oauthclient.Config
		ownerName string
	)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Run the three-legged flow against a server",
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch token credentials for a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.ClientPassword == "" {
				var err error
				if cfg.ClientPassword, err = a.readPassword(cmd, "Client password: ", false); err != nil {
					return err
				}
			}

			client, err := oauthclient.New(cfg)
			if err != nil {
				return err
			}

			var owner *oauthclient.ResourceOwner
			if ownerName != "" {
				password, err := a.readPassword(cmd, "Resource owner password: ", false)
				if err != nil {
					return err
				}
				owner = &oauthclient.ResourceOwner{Username: ownerName, Password: password}
			}

			tok, err := client.FetchToken(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(tokenView{
				AccessToken:  tok.AccessToken,
				TokenType:    tok.Type(),
				RefreshToken: tok.RefreshToken,
				Expiry:       tok.Expiry.UTC().Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))

			return nil
		},
	}

	flags := fetchCmd.Flags()
	flags.StringVar(&cfg.Endpoint, "endpoint", "http://localhost:8080/oauth2", "protocol endpoint URL")
	flags.StringVar(&cfg.ClientName, "client", "", "client account name")
	flags.StringVar(&cfg.ClientPassword, "client-password", "", "client account password (prompted when empty)")
	flags.StringVar(&cfg.RestKey, "rest-key", "", "key mixed into the client id and secret")
	flags.StringVar(&cfg.SignatureMethod, "signature-method", "PLAINTEXT", "PLAINTEXT or HMAC-SHA1")
	flags.StringVar(&cfg.RedirectURI, "redirect-uri", "", "callback URL stored with the temporary credentials")
	flags.StringVar(&ownerName, "owner", "", "resource owner username (password read from stdin)")
	_ = fetchCmd.MarkFlagRequired("client")

	tokenCmd.AddCommand(fetchCmd)

	return tokenCmd
}
