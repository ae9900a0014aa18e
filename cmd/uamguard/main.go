// Command uamguard runs the load-based Cloudflare Under Attack Mode daemon.
//
// Subcommands:
//
//	uamguard run        start the control loop (default when omitted)
//	uamguard validate   check the config file and exit
//	uamguard status     query a running daemon's HTTP status surface
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "uamguard",
		Short: "Automatic Cloudflare Under Attack Mode based on system load",
		Long: `uamguard samples the system load average, tracks a rolling baseline,
and enables Cloudflare's Under Attack Mode when normalized load crosses the
configured threshold. Protection is lifted again once load falls back below
the lower bound and the minimum protection duration has passed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/uamguard/config.yaml", "path to config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
		SilenceUsage: true,
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
