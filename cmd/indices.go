package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spectral-cli/internal/spectral"
)

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "List the spectral index catalog with its display stretches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		vis, err := spectral.LoadVisTable(cfg.Spectral.VisPath)
		if err != nil {
			return err
		}
		formatIndices(os.Stdout, spectral.Indices, vis)
		return nil
	},
}

func formatIndices(out io.Writer, defs []spectral.IndexDefinition, vis spectral.VisTable) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tBANDS\tFORMULA\tRANGE\tPALETTE")
	for _, d := range defs {
		rng, palette := "-", "-"
		if p, ok := vis[d.Name]; ok {
			rng = fmt.Sprintf("[%g, %g]", p.Min, p.Max)
			if len(p.Palette) > 0 {
				palette = strings.Join(p.Palette, ",")
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Name, strings.Join(d.Bands, ","), d.Formula, rng, palette)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(indicesCmd)
}
