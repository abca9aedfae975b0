package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dgallion1/legalparse/internal/grammar"
	"github.com/dgallion1/legalparse/internal/hierarchy"
	"github.com/dgallion1/legalparse/internal/source"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var grammarFile string

	root := &cobra.Command{
		Use:   "actparse",
		Short: "Structure Romanian legal acts",
		Long: `actparse reads the text of a Romanian legal act and rebuilds its
structure: books, titles, chapters, sections, articles, paragraphs and points.

Supported formats: TXT, MD, HTML, DOCX`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&grammarFile, "grammar", "", "YAML grammar file (default: built-in Romanian grammar)")

	loadGrammar := func() (*grammar.Grammar, error) {
		if grammarFile == "" {
			return grammar.Default(), nil
		}
		return grammar.LoadFile(grammarFile)
	}

	root.AddCommand(parseCmd(loadGrammar))
	root.AddCommand(grammarCmd(loadGrammar))
	return root
}

func parseCmd(loadGrammar func() (*grammar.Grammar, error)) *cobra.Command {
	var (
		format   string
		lookup   string
		fallback string
		maxLines int
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse an act and print its structure",
		Long: `Parse an act and print its structure.

Formats:
  json     nested tree with content (default)
  outline  indented list of structural markers
  markers  canonical marker lines, one per node

Example:
  actparse parse codul-civil.txt --format outline
  actparse parse lege.docx --lookup "Chapter II / Article 15"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			g, err := loadGrammar()
			if err != nil {
				return err
			}

			doc, err := readDocument(args[0], fallback)
			if err != nil {
				return err
			}
			log.Debug("read document", "file", args[0], "lines", len(doc.Lines), "encoding", doc.Encoding)

			res, err := hierarchy.Parse(g, doc.Lines,
				hierarchy.WithLogger(log),
				hierarchy.WithMaxLines(maxLines),
			)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if lookup != "" {
				node, err := res.Tree.Lookup(lookup)
				if err != nil {
					return err
				}
				return writeJSON(out, node)
			}

			switch format {
			case "json":
				return writeJSON(out, res)
			case "outline":
				_, err := io.WriteString(out, res.Tree.Outline())
				return err
			case "markers":
				lines, err := hierarchy.Markers(res.Tree)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, strings.Join(lines, "\n")+"\n")
				return err
			default:
				return fmt.Errorf("unknown format %q (want json, outline or markers)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, outline, markers")
	cmd.Flags().StringVar(&lookup, "lookup", "", "Print only the node at this path, e.g. \"Title II / Article 15\"")
	cmd.Flags().StringVar(&fallback, "fallback-encoding", source.DefaultFallback, "Encoding assumed for non-UTF-8 text files")
	cmd.Flags().IntVar(&maxLines, "max-lines", 0, "Reject inputs longer than this many lines (0: no limit)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	return cmd
}

func grammarCmd(loadGrammar func() (*grammar.Grammar, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "grammar",
		Short: "Show the structural markers that are recognized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGrammar()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Grammar: %s\n\n", g.Name())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tKIND\tALIASES\tEXAMPLE")
			for _, r := range g.Rules() {
				example := ""
				if len(r.Examples) > 0 {
					example = r.Examples[len(r.Examples)-1]
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Rank, r.Name, strings.Join(r.Aliases, ", "), example)
			}
			return tw.Flush()
		},
	}
}

func readDocument(path, fallback string) (*source.Document, error) {
	src, err := source.ForFile(path)
	if err != nil {
		return nil, err
	}
	if ts, ok := src.(*source.TextSource); ok {
		ts.Fallback = fallback
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := src.Read(f, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return doc, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
