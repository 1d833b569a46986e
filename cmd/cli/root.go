package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codesentry-cli",
	Short: "codesentry-cli is a CLI tool for CodeSentry",
	Long:  `A command-line interface for submitting repositories, checking ingest status, and running quality gates against the CodeSentry server.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(qualityGateCmd)
}
