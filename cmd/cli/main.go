package main

import (
	"fmt"
	"os"

	"github.com/nimasrn/matatu-pay/internal/bootstrap"
	"github.com/nimasrn/matatu-pay/internal/config"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	envPath       string
	migrationsDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "matatu",
		Short:   "Administration tool for the matatu fare payment backend",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load(bootstrap.EnvPath([]string{"--env=" + envPath}))
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "env file to load")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(vehicleCmd())
	rootCmd.AddCommand(settingsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
