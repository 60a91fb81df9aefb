package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/codedrop-io/codedrop/internal/interfaces/cli/migrate"
	"github.com/codedrop-io/codedrop/internal/interfaces/cli/server"
	"github.com/codedrop-io/codedrop/internal/interfaces/cli/token"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "codedrop",
		Short: "codedrop - promo code distribution and claim coordination",
		Long:  `codedrop pushes newly observed promo codes to connected clients and records each account's claim result exactly once.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		token.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
