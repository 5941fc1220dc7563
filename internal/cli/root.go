// Package cli provides the clusterd command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (required)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(membersCmd)
}

var rootCmd = &cobra.Command{
	Use:   "clusterd",
	Short: "Decentralized cluster-membership node",
	Long: `clusterd runs a single node of a SWIM-style cluster-membership
cluster: it probes peers, disseminates state changes by gossip, and
exposes the current view over HTTP.`,
}

// Execute runs the root command, printing any error to stderr before
// exiting non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
