// Package cli wires the netboxgw binary's subcommands: version, serve,
// and chat.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// SetBuildInfo sets version info injected at build time.
func SetBuildInfo(v, date, commit string) {
	version = v
	buildDate = date
	gitCommit = commit
}

var rootCmd = &cobra.Command{
	Use:   "netboxgw",
	Short: "Conversational gateway in front of a Netbox inventory",
	Long: `netboxgw is a WebSocket gateway that lets a browser (or the
bundled chat CLI) ask natural-language questions about a Netbox
inventory. It proxies turns to an Anthropic model, which calls a
Netbox MCP tool server for read-only lookups and streams its answer
back chunk by chunk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("netboxgw %s\n", version)
		fmt.Printf("  build:  %s\n", buildDate)
		fmt.Printf("  commit: %s\n", gitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

// Execute runs the root cobra command.
func Execute() error {
	return rootCmd.Execute()
}
