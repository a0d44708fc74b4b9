package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build one generation and report its size",
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	gen, err := buildGeneration(cmd.Context())
	if err != nil {
		return err
	}
	defer gen.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "generation %s (%s)\n", gen.ID, gen.Mode)
	fmt.Fprintf(out, "  documents: %d\n", gen.Stats.Documents)
	fmt.Fprintf(out, "  raw terms: %d\n", gen.Stats.RawTerms)
	fmt.Fprintf(out, "  tokens:    %d\n", gen.Stats.Tokens)
	fmt.Fprintf(out, "  postings:  %d\n", gen.Stats.Postings)
	fmt.Fprintf(out, "  scan time: %s\n", gen.Stats.ScanDuration)
	if gen.Dir != "" {
		fmt.Fprintf(out, "  written to %s\n", gen.Dir)
	}
	return nil
}
