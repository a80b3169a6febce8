package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spectral-cli/internal/analysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Sample Sentinel-2 bands and spectral indices at a point",
	Long: "Filters the scene index to the window around the point, masks clouds, and reports the " +
		"bands and indices of the earliest covering image. With --random the point is drawn over land.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		random, _ := cmd.Flags().GetBool("random")
		asJSON, _ := cmd.Flags().GetBool("json")
		reverse, _ := cmd.Flags().GetBool("reverse")

		dates, cloud, err := windowFromFlags(cmd)
		if err != nil {
			return err
		}
		req := analysis.Request{Dates: dates, MaxCloud: cloud}
		if !random {
			if req.Point, err = pointFromFlags(cmd); err != nil {
				return err
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		svc, err := newService(ctx, serviceOptions{
			source:   true,
			places:   true,
			geocoder: reverse,
			sampler:  random,
			samples:  st,
			cache:    st,
		})
		if err != nil {
			return err
		}

		if random {
			if svc.Sampler == nil {
				return eris.Wrap(analysis.ErrUnavailable, "analyze: --random needs a land sampler")
			}
			lp, err := svc.RandomLand(ctx)
			if err != nil {
				return eris.Wrap(err, "analyze")
			}
			req.Point = lp.Point
		}

		res, err := svc.Spectra(ctx, req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		if asJSON {
			return printJSON(os.Stdout, res)
		}
		formatSpectra(os.Stdout, res)
		return nil
	},
}

// formatSpectra writes the location header and one row per valid band.
func formatSpectra(out io.Writer, s *analysis.Spectra) {
	_, _ = fmt.Fprintf(out, "Point:    %.5f, %.5f\n", s.Point.Lat, s.Point.Lon)
	if m := s.Location.Nearest; m != nil {
		_, _ = fmt.Fprintf(out, "Nearest:  %s, %s (%.1f km)\n", m.Feature.Name, m.Feature.Region, m.Meters/1000)
	}
	if r := s.Location.Reverse; r != nil {
		_, _ = fmt.Fprintf(out, "Location: %s, %s\n", r.City, r.Country)
	}
	_, _ = fmt.Fprintf(out, "Image:    %s (%s), %d in window\n\n", s.ImageID, s.Acquired.Format("2006-01-02"), s.Images)

	if len(s.Values) == 0 {
		_, _ = fmt.Fprintln(out, "No valid data at this point (masked or outside coverage).")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BAND\tVALUE")
	for _, bv := range s.Values {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\n", bv.Band, bv.Value)
	}
	_ = w.Flush()
}

func init() {
	addQueryFlags(analyzeCmd)
	analyzeCmd.Flags().Bool("random", false, "analyze a random land point instead of --lat/--lon")
	analyzeCmd.Flags().Bool("reverse", false, "also reverse geocode the point with Nominatim")
	analyzeCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
