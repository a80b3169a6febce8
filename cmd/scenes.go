package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/scene"
	"github.com/sells-group/spectral-cli/pkg/stac"
)

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "Search the STAC catalog and write a Sentinel-2 scene index",
	Long: "Searches for scenes over --bbox, or the buffered --lat/--lon point, within the date window " +
		"and below the cloud limit, then writes the band asset links as a YAML scene index.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		dates, cloud, err := windowFromFlags(cmd)
		if err != nil {
			return err
		}

		var region model.BoundingBox
		if b, _ := cmd.Flags().GetString("bbox"); b != "" {
			if region, err = parseBBox(b); err != nil {
				return err
			}
		} else {
			p, err := pointFromFlags(cmd)
			if err != nil {
				return err
			}
			region = model.BufferPoint(p, cfg.Spectral.BufferMeters)
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = cfg.Scenes.IndexPath
		}

		client := stac.NewClient(
			stac.WithBaseURL(cfg.STAC.URL),
			stac.WithRateLimit(cfg.STAC.RateLimit),
		)
		req := stac.NewSearch(cfg.STAC.Collection, region.Bound(), dates.Start, dates.End, cloud)
		req.MaxItems = cfg.STAC.MaxItems

		items, err := client.Search(ctx, req)
		if err != nil {
			return eris.Wrap(err, "scenes: search")
		}
		scenes := scene.FromSTAC(items)
		if err := scene.SaveIndex(out, scenes); err != nil {
			return err
		}

		zap.L().Info("scene index written",
			zap.String("path", out),
			zap.Int("items", len(items)),
			zap.Int("scenes", len(scenes)),
		)
		_, _ = fmt.Fprintf(os.Stdout, "wrote %d scenes to %s\n", len(scenes), out)
		return nil
	},
}

func init() {
	addQueryFlags(scenesCmd)
	scenesCmd.Flags().String("bbox", "", "minLon,minLat,maxLon,maxLat (overrides --lat/--lon)")
	scenesCmd.Flags().String("out", "", "index file to write (default scenes.index_path)")
	rootCmd.AddCommand(scenesCmd)
}
