package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/strideapp/stride/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "stride-configure",
		Short: "Configuration tool for the Stride API",
		Long:  "CLI tool for configuring OIDC providers, rate limits and other settings",
	}

	rootCmd.AddCommand(commands.NewOIDCCmd())
	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
