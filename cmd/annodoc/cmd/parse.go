package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/dgallion1/annodoc/internal/doctree"
	"github.com/dgallion1/annodoc/internal/extract"
	"github.com/dgallion1/annodoc/internal/parser"
	"github.com/dgallion1/annodoc/internal/resolver"
	"github.com/dgallion1/annodoc/internal/watch"
	"github.com/spf13/cobra"
)

var (
	parseWorkers int
	parsePretty  bool
	parseTree    bool
	parseFlags   extractFlags
)

var parseCmd = &cobra.Command{
	Use:   "parse [paths or globs...]",
	Short: "Extract documentation entities as JSON",
	Long: "Parses every supported file named by the arguments. Directories are\n" +
		"walked, other arguments are doublestar globs. Prints one JSON array with\n" +
		"an object per file. Exits non-zero if any file fails.",
	RunE: runParse,
}

func init() {
	parseCmd.Flags().IntVarP(&parseWorkers, "workers", "w", 0, "Files parsed concurrently (0 = number of CPUs)")
	parseCmd.Flags().BoolVar(&parsePretty, "pretty", false, "Indent JSON output")
	parseCmd.Flags().BoolVar(&parseTree, "tree", false, "Print the entity tree as an outline instead of JSON")
	parseFlags.register(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	files, err := watch.Discover(args, parseFlags.filter())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported files found")
	}

	inputs := make([]parser.Input, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		inputs = append(inputs, parser.Input{
			Filename: f,
			Meta:     map[string]any{"file": f},
			Contents: string(data),
		})
	}
	logger.Debug("parsing", "files", len(inputs), "workers", workers())

	var failed int
	if parseTree {
		failed, err = printTrees(cmd, inputs)
	} else {
		failed, err = printRecords(cmd, inputs)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(inputs))
	}
	return nil
}

func workers() int {
	switch {
	case parseWorkers > 0:
		return parseWorkers
	case project.Workers > 0:
		return project.Workers
	}
	return runtime.NumCPU()
}

func printRecords(cmd *cobra.Command, inputs []parser.Input) (int, error) {
	x, closeCache, err := parseFlags.extractor()
	if err != nil {
		return 0, err
	}
	defer closeCache()

	results, err := x.ExtractAll(cmd.Context(), inputs, workers())
	if err != nil {
		return 0, err
	}

	failed := 0
	out := make([]any, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			failed++
			out = append(out, errorFor(r.Input.Filename, r.Err))
			logger.Warn("parse failed", "file", r.Input.Filename, "error", r.Err)
			continue
		}
		out = append(out, r.Result)
	}
	return failed, newEncoder(cmd.OutOrStdout(), parsePretty).Encode(out)
}

func errorFor(file string, err error) fileError {
	return fileError{
		File:   file,
		Error:  err.Error(),
		Line:   resolver.Line(err),
		Reason: extract.Reason(err),
	}
}

// printTrees resolves each file without the cache and prints an indented
// outline of its entities.
func printTrees(cmd *cobra.Command, inputs []parser.Input) (int, error) {
	var opts []resolver.Option
	if parseFlags.strict || project.Strict {
		opts = append(opts, resolver.Strict())
	}
	results, err := parser.ParseAll(cmd.Context(), inputs, workers(), opts...)
	if err != nil {
		return 0, err
	}

	w := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Input.Filename, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s (%s)\n", r.Document.Filename, r.Document.Language)
		for _, root := range r.Document.Roots {
			writeOutline(w, root)
		}
	}
	return failed, nil
}

func writeOutline(w io.Writer, root *doctree.Entity) {
	root.Walk(func(e *doctree.Entity) {
		depth := 1
		for p := e.Parent(); p != nil; p = p.Parent() {
			depth++
		}
		kind := string(e.Kind)
		if e.Kind == doctree.KindUnmapped {
			kind = e.DeclaredType + "?"
		}
		line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", depth), kind, e.ID())
		if len(e.Signatures) > 0 {
			line += " :: " + strings.Join(e.Signatures, " | ")
		}
		fmt.Fprintln(w, line)
	})
}
