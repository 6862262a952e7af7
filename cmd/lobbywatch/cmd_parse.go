package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/lobbywatch/internal/tableparser"
)

var errNoTable = errors.New("no congress member table found")

func newParseCmd() *cobra.Command {
	var (
		order  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Extract the ranked member table from a markdown file",
		Long: `Run the table parser over a file of agent output and print the ranked
congress members it contains. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if order == "" {
				order = cfg.DualTableOrder
			}

			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			table := tableparser.New(tableparser.ParseDualTableOrder(order)).Parse(text)
			if table == nil {
				return errNoTable
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(table)
			}
			renderTable(out, table)
			return nil
		},
	}
	cmd.Flags().StringVar(&order, "order", "", "Dual table order: aligned_first or opposed_first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the parsed table as JSON")
	return cmd
}

func readInput(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}
