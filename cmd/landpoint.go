package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spectral-cli/internal/analysis"
)

var landpointCmd = &cobra.Command{
	Use:   "landpoint",
	Short: "Draw a random point over land and name the nearest place",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		reverse, _ := cmd.Flags().GetBool("reverse")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		svc, err := newService(ctx, serviceOptions{places: true, geocoder: reverse, sampler: true, cache: st})
		if err != nil {
			return err
		}
		if svc.Sampler == nil {
			return eris.Wrap(analysis.ErrUnavailable, "landpoint: configure land_sample.polygon_path or land_sample.landcover_path")
		}

		lp, err := svc.RandomLand(ctx)
		if err != nil {
			return eris.Wrap(err, "landpoint")
		}
		return printJSON(os.Stdout, lp)
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	landpointCmd.Flags().Bool("reverse", false, "also reverse geocode the point with Nominatim")
	rootCmd.AddCommand(landpointCmd)
}
