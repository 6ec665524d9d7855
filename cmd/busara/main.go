// Busara — multi-agent chat assistant with workflow orchestration.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "busara",
	Short: "Busara — multi-agent chat assistant with workflow orchestration.",
	Long: `Busara routes chat messages to specialized agents and, for complex
requests, plans a multi-step workflow executed by concurrent agent workers.
It exposes an HTTP API, an interactive CLI, and one-shot queries.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, queryCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
