package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dca-auth",
	Short: "DCA-Auth command line client",
	Long: `Command line client for the DCA-Auth license service.

Configuration is read from DCA_AUTH_* environment variables and can be
overridden with flags. Credentials are kept in an encrypted file unless
--redis-addr is given.`,
	SilenceUsage: true,
}

func init() {
	registerGlobalFlags(rootCmd)
	cobra.OnFinalize(closeResources)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(licenseCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(listenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
