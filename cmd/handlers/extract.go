package handlers

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/parser"
)

// NewExtractURLsCmd creates the extract-urls command
func NewExtractURLsCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "extract-urls [FILE|-]",
		Short: "Print the article URLs found in text",
		Long: `Extract-urls applies the same extraction and normalization as the pipeline
to a text or markdown file (or stdin) and prints one URL per line.

Chat links (<url|label>), bare URLs and markdown links are recognized.
Local, private and chat platform hosts are ignored.

Examples:
  daily-topic extract-urls export.txt
  pbpaste | daily-topic extract-urls -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runExtractURLs(cmd.InOrStdin(), cmd.OutOrStdout(), path, raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Skip redirect unwrapping and decoding")

	return cmd
}

func runExtractURLs(in io.Reader, out io.Writer, path string, raw bool) error {
	p := parser.NewParser()

	var (
		urls []string
		err  error
	)
	if path == "-" {
		urls, err = extractFromReader(p, in)
	} else {
		urls, err = p.ParseFile(path)
	}
	if err != nil {
		return err
	}

	if !raw {
		urls = parser.NormalizeAll(urls)
	}
	for _, u := range urls {
		if err := p.ValidateURL(u); err != nil {
			continue
		}
		fmt.Fprintln(out, u)
	}
	return nil
}

func extractFromReader(p *parser.Parser, in io.Reader) ([]string, error) {
	var messages []core.Message
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		messages = append(messages, core.Message{Text: scanner.Text(), Source: "stdin"})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return p.ExtractFromMessages(messages), nil
}
