// Command mozi is the runtime host's entry point: a cobra CLI whose single
// long-running subcommand, `runtime start`, wires every collaborator in
// internal/ into one multi-channel agent dispatch process.
//
// Grounded on the teacher's cmd/root.go (Version var set via ldflags,
// persistent --config/--verbose flags, init()-registered subcommands,
// Execute wrapping rootCmd.Execute with os.Exit(1) on error).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mozi",
	Short: "Mozi — multi-channel agent dispatch runtime",
	Long:  "Mozi: a long-running runtime host that receives messages over Telegram, Discord, and a local desktop transport, dispatches them through a single-writer session kernel, and drives heartbeats and reminders on a clock.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $MOZI_CONFIG or ~/.mozi/config.jsonc)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runtimeCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mozi %s\n", Version)
		},
	}
}

// resolveConfigPath implements the --config / MOZI_CONFIG / default
// precedence order spec.md §6 describes for the configuration file.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("MOZI_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.jsonc"
	}
	return home + "/.mozi/config.jsonc"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
