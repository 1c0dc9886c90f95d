package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Zereker/irc"
)

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [line...]",
		Short: "Print the parts of IRC messages",
		Long: `Parse IRC lines given as arguments, or one per line on stdin, and print
their tags, prefix, command and parameters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				for _, line := range args {
					if err := describe(out, line); err != nil {
						return err
					}
				}
				return nil
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if err := describe(out, scanner.Text()); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
}

func describe(out io.Writer, line string) error {
	m, err := irc.Parse(line)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Tags:")
	for _, key := range m.Tags.Keys() {
		if value, ok := m.Tags.Get(key); ok {
			fmt.Fprintf(out, "  %q: %q\n", key, value)
		} else {
			fmt.Fprintf(out, "  %q: (none)\n", key)
		}
	}
	fmt.Fprintf(out, "Nick: %q\n", m.Nick)
	fmt.Fprintf(out, "User: %q\n", m.User)
	fmt.Fprintf(out, "Host: %q\n", m.Host)
	fmt.Fprintf(out, "Command: %q\n", m.Command)
	fmt.Fprintf(out, "Sub-Command: %q\n", m.SubCommand)
	fmt.Fprintf(out, "Middle: %q\n", m.Middle)
	fmt.Fprintf(out, "Parameters: %q\n", m.Parameters)

	return nil
}
