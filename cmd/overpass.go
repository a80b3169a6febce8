package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/overpass"
)

var overpassCmd = &cobra.Command{
	Use:   "overpass",
	Short: "Query OpenStreetMap features (vineyards by default) inside a bounding box",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		bboxFlag, _ := cmd.Flags().GetString("bbox")
		key, _ := cmd.Flags().GetString("key")
		value, _ := cmd.Flags().GetString("value")
		center, _ := cmd.Flags().GetBool("center")
		outPath, _ := cmd.Flags().GetString("geojson")

		bbox, err := parseBBox(bboxFlag)
		if err != nil {
			return err
		}
		q := overpass.Query{
			BBox:    bbox,
			Key:     key,
			Value:   value,
			Timeout: time.Duration(cfg.Overpass.TimeoutSecs) * time.Second,
		}
		if center {
			q.Output = overpass.OutputCenter
		}
		query, err := overpass.BuildQuery(q)
		if err != nil {
			return err
		}

		client := overpass.NewClient(
			overpass.WithBaseURL(cfg.Overpass.URL),
			overpass.WithRateLimit(rate.Limit(cfg.Overpass.RateLimit)),
			overpass.WithRetry(retryConfig()),
			overpass.WithUserAgent(cfg.Download.UserAgent),
		)
		res, err := client.Do(ctx, query)
		if err != nil {
			return err
		}

		if outPath != "" {
			data, err := res.FeatureCollection().MarshalJSON()
			if err != nil {
				return eris.Wrap(err, "overpass: encode geojson")
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return eris.Wrapf(err, "overpass: write %s", outPath)
			}
			zap.L().Info("wrote geojson", zap.String("path", outPath), zap.Int("elements", len(res.Elements)))
		}
		formatOverpassRows(os.Stdout, res.Nodes(), res.Ways())
		return nil
	},
}

// parseBBox reads "minLon,minLat,maxLon,maxLat".
func parseBBox(s string) (model.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return model.BoundingBox{}, eris.Errorf("bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BoundingBox{}, eris.Wrapf(err, "bbox %q", s)
		}
		v[i] = f
	}
	b := model.BoundingBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if err := b.Validate(); err != nil {
		return model.BoundingBox{}, err
	}
	return b, nil
}

func formatOverpassRows(out io.Writer, nodes, ways []overpass.Row) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tID\tLAT\tLON\tNAME")
	write := func(kind string, rows []overpass.Row) {
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%.6f\t%.6f\t%s\n", kind, r.ID, r.Lat, r.Lon, r.Tags["name"])
		}
	}
	write("node", nodes)
	write("way", ways)
	_ = w.Flush()
}

func init() {
	overpassCmd.Flags().String("bbox", "", "minLon,minLat,maxLon,maxLat")
	overpassCmd.Flags().String("key", "landuse", "OSM tag key")
	overpassCmd.Flags().String("value", "vineyard", "OSM tag value")
	overpassCmd.Flags().Bool("center", false, "request way centres instead of full geometry")
	overpassCmd.Flags().String("geojson", "", "also write the features to this GeoJSON file")
	_ = overpassCmd.MarkFlagRequired("bbox")
	rootCmd.AddCommand(overpassCmd)
}
