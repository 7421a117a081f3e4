// simrelease submits ICCID batches for AUC creation and SIM liberation.
package main

import (
	"fmt"
	"os"

	"github.com/simrelease/simrelease/cmd/simrelease/cli"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "simrelease",
		Short: "simrelease: AUC creation and SIM release",
		Long: `simrelease submits batches of ICCIDs to the provisioning service for AUC
creation and SIM liberation against PROD or UAT. Your role decides which
environments you may target. Run 'simrelease shell' for an interactive session.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Register command groups
	cli.RegisterAuthCommands(rootCmd)
	cli.RegisterSubmitCommands(rootCmd)
	cli.RegisterShellCommand(rootCmd)
	cli.RegisterSettingsCommands(rootCmd)
	cli.RegisterAuditCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
