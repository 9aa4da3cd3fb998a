// Package cmd defines the docsentry command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docsentry",
	Short: "Confidentiality-aware document question answering",
	Long: `Docsentry indexes your documents into a tiered vector store and answers
questions over them. Every chunk carries its document's confidentiality
tier, and retrieval only ever searches the tiers a user's role is cleared
for, so answers cannot leak restricted material.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".docsentry.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
