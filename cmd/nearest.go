package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/placeindex"
)

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Find the populated places nearest to a point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		k, _ := cmd.Flags().GetInt("k")
		reverse, _ := cmd.Flags().GetBool("reverse")

		p := model.GeoPoint{Lat: lat, Lon: lon}
		if err := p.Validate(); err != nil {
			return err
		}

		idx, err := loadPlaces(ctx)
		if err != nil {
			return eris.Wrap(err, "nearest: load places")
		}
		matches, err := idx.NearestK(p, k)
		if err != nil {
			return eris.Wrap(err, "nearest")
		}
		formatMatches(os.Stdout, matches)

		if reverse {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close() //nolint:errcheck
			}
			place, err := newGeocoder(st).Reverse(ctx, p.Lat, p.Lon)
			if err != nil {
				return eris.Wrap(err, "nearest: reverse geocode")
			}
			_, _ = fmt.Fprintf(os.Stdout, "\nNominatim: %s, %s\n", place.City, place.Country)
		}
		return nil
	},
}

// formatMatches writes a table of matches, nearest first.
func formatMatches(out io.Writer, matches []placeindex.Match) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tREGION\tLAT\tLON\tKM")
	for _, m := range matches {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.1f\n",
			m.Feature.Name, m.Feature.Region, m.Point.Lat, m.Point.Lon, m.Meters/1000)
	}
	_ = w.Flush()
}

func init() {
	nearestCmd.Flags().Float64("lat", 0, "latitude in decimal degrees")
	nearestCmd.Flags().Float64("lon", 0, "longitude in decimal degrees")
	nearestCmd.Flags().Int("k", 1, "number of places to list")
	nearestCmd.Flags().Bool("reverse", false, "also reverse geocode the point with Nominatim")
	rootCmd.AddCommand(nearestCmd)
}
