package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
)

var flagConsoleReuse bool

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Build a generation and query it interactively",
	Long: `console builds (or with --reuse opens) one generation and reads
queries from standard input, one per line. Every word of a line is looked
up separately. An empty line, "quit" or end of input ends the session.`,
	Args: cobra.NoArgs,
	RunE: runConsoleCmd,
}

func init() {
	consoleCmd.Flags().BoolVar(&flagConsoleReuse, "reuse", false, "open the newest persisted disk generation instead of building")
	rootCmd.AddCommand(consoleCmd)
}

func runConsoleCmd(cmd *cobra.Command, args []string) error {
	gen, err := openGeneration(cmd.Context(), flagConsoleReuse)
	if err != nil {
		return err
	}
	defer gen.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "generation %s: %d documents, %d tokens\n",
		gen.ID, gen.Stats.Documents, gen.Stats.Tokens)
	return runConsole(cmd.Context(), gen, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runConsole(ctx context.Context, s termSearcher, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "quit" {
			return nil
		}
		for term := range tokenizer.Tokens(line) {
			results, err := s.Search(ctx, term)
			if err != nil {
				// A corrupt record fails only this lookup.
				fmt.Fprintf(out, "%s: error: %v\n", term, err)
				continue
			}
			printResults(out, term, results)
		}
	}
}
