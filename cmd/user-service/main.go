// Package main is the entry point for the user service.
package main

import (
	"os"

	"github.com/userhub/userhub/cmd/user-service/daemon"
	"github.com/userhub/userhub/internal/cli"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		os.Exit(cli.ExitError)
	}

	os.Exit(cli.Execute(a))
}
