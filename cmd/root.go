package cmd

import (
	"fmt"
	"log"
	"os"

	"MiniMixLab/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "minimixlab",
	Short: "MiniMixLab is an audio arrangement and remix engine.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting MiniMixLab server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
