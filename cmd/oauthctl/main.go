package main

import (
	"os"

	"github.com/pilab-dev/shadow-oauth/cmd/oauthctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
