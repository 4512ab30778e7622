package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "sandsim",
	Short: "SandOS host simulator",
	Long:  "sandsim runs the SandOS kernel on a simulated single-hart machine.",
}

func init() {
	rootCmd.AddCommand(runCmd)
}
