package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewInteractiveCmd creates the interactive command.
func NewInteractiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Run a guided menu",
		Long:  "Download extensions or create a configuration file through a simple text menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	return cmd
}

const interactiveMenu = `
Options:
1. Download single extension
2. Download multiple extensions
3. Download from file
4. Create sample config
5. Exit
`

func runInteractive(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	prompt := func(msg string) (string, bool) {
		if msg != "" {
			_, _ = fmt.Fprint(out, msg)
		}
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	_, _ = fmt.Fprintln(out, "crxget interactive mode")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, _ = fmt.Fprint(out, interactiveMenu)
		choice, ok := prompt("\nEnter your choice (1-5): ")
		if !ok {
			return scanner.Err()
		}

		var err error
		switch choice {
		case "1":
			id, ok := prompt("Enter extension ID: ")
			if ok && id != "" {
				err = runDownload(ctx, out, []string{id}, downloadOptions{})
			}
		case "2":
			_, _ = fmt.Fprintln(out, "Enter extension IDs (one per line, empty line to finish):")
			var ids []string
			for {
				id, ok := prompt("")
				if !ok || id == "" {
					break
				}
				ids = append(ids, id)
			}
			if len(ids) > 0 {
				err = runDownload(ctx, out, ids, downloadOptions{})
			}
		case "3":
			path, ok := prompt("Enter path to file with extension IDs: ")
			if ok && path != "" {
				err = runDownload(ctx, out, nil, downloadOptions{fromFile: path})
			}
		case "4":
			err = runConfigInit(out, false)
		case "5":
			_, _ = fmt.Fprintln(out, "Goodbye!")
			return nil
		default:
			_, _ = fmt.Fprintln(out, "Invalid choice. Please try again.")
		}

		if err != nil {
			_, _ = fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}
