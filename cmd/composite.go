package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spectral-cli/internal/analysis"
	"github.com/sells-group/spectral-cli/internal/raster"
)

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "Reduce the cloud-masked scenes around a point and summarise each band",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		req, err := queryFromFlags(cmd)
		if err != nil {
			return err
		}

		svc, err := newService(ctx, serviceOptions{source: true})
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("reducer"); name != "" {
			if svc.Reducer, err = raster.ReducerByName(name); err != nil {
				return err
			}
		}

		res, err := svc.Composite(ctx, req)
		if err != nil {
			return eris.Wrap(err, "composite")
		}
		if asJSON {
			return printJSON(os.Stdout, res)
		}
		formatComposite(os.Stdout, res)
		return nil
	},
}

func formatComposite(out io.Writer, r *analysis.CompositeResult) {
	_, _ = fmt.Fprintf(out, "%s composite of %d images, %dx%d pixels\n\n", r.Reducer, r.Images, r.Width, r.Height)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BAND\tVALID\tMIN\tMEAN\tMAX")
	for _, b := range r.Bands {
		_, _ = fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\t%s\n", b.Band, b.Valid, b.Pixels, fmtStat(b.Min), fmtStat(b.Mean), fmtStat(b.Max))
	}
	_ = w.Flush()
}

func fmtStat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func init() {
	addQueryFlags(compositeCmd)
	compositeCmd.Flags().String("reducer", "", "median, mean, min, max or first (default from config)")
	compositeCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(compositeCmd)
}
