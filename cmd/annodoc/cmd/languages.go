package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/dgallion1/annodoc/internal/parser"
	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported file extensions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exts := make([]string, 0, len(parser.SupportedExtensions))
		for ext := range parser.SupportedExtensions {
			exts = append(exts, ext)
		}
		sort.Strings(exts)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EXTENSION\tLANGUAGE\tCOMMENT")
		for _, ext := range exts {
			lang := parser.SupportedExtensions[ext]
			marker := ""
			if t, ok := parser.SyntaxFor(lang); ok {
				marker = t.Marker()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", ext, lang, marker)
		}
		return tw.Flush()
	},
}
