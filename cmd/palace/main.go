package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath string
	apiBase string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "palace",
	Short: "Memory palace client",
	Long: `palace manages a memory palace from the command line: provisioning a
palace with its local signing keypair, sealing and storing session
memories, recovering and verifying them, and managing guest agents.

The palace key never leaves this machine. The server stores ciphertext
and checks signatures against the registered public key; decryption and
trust classification happen here.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "credentials file (default ~/.palace/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "API base URL (overrides the configured one)")
}
