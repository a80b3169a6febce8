package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spectral-cli/internal/convert"
)

var convertCmd = &cobra.Command{
	Use:   "convert <src-dir> <dst-dir>",
	Short: "Convert every KML and KMZ file in a directory to shapefiles",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		driver := cfg.Convert.Driver
		if v, _ := cmd.Flags().GetString("driver"); v != "" {
			driver = v
		}
		runner, err := newRunner(driver)
		if err != nil {
			return err
		}

		c := convert.New(runner)
		if cfg.Convert.Format != "" {
			c.Format = cfg.Convert.Format
		}
		if cfg.Convert.Ext != "" {
			c.Ext = cfg.Convert.Ext
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			c.Recorder = st
		}

		report, err := c.ConvertDir(ctx, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "convert")
		}
		printConvertReport(os.Stdout, report)
		return nil
	},
}

func newRunner(driver string) (convert.Runner, error) {
	switch driver {
	case "ogr2ogr":
		return convert.NewOGRRunner(cfg.Convert.OGR2OGRPath), nil
	case "native":
		return convert.NewNativeRunner(), nil
	default:
		return nil, eris.Errorf("convert: unknown driver %q (want ogr2ogr or native)", driver)
	}
}

func printConvertReport(w io.Writer, r convert.Report) {
	_, _ = fmt.Fprintf(w, "found %d, converted %d, failed %d\n", r.Found, r.Converted, r.Failed)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			_, _ = fmt.Fprintf(w, "  %s: %v\n", o.Task.Source, o.Err)
		}
	}
}

func init() {
	convertCmd.Flags().String("driver", "", "conversion driver: ogr2ogr or native (default from config)")
	rootCmd.AddCommand(convertCmd)
}
