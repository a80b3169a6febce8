package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/download"
	"github.com/sells-group/spectral-cli/internal/manifest"
)

var downloadCmd = &cobra.Command{
	Use:   "download <manifest> <dest-dir>",
	Short: "Download every linked outline listed in a manifest spreadsheet",
	Long: "Reads an .xlsx or .csv manifest, downloads each row's outline link into dest-dir, " +
		"and records every outcome. Failures are logged and never stop the batch.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		manifestPath, destDir := args[0], args[1]

		opts := manifest.Options{
			Sheet:      cfg.Manifest.Sheet,
			NameColumn: cfg.Manifest.NameColumn,
			LinkColumn: cfg.Manifest.LinkColumn,
		}
		if v, _ := cmd.Flags().GetString("sheet"); v != "" {
			opts.Sheet = v
		}
		rows, err := manifest.Load(manifestPath, opts)
		if err != nil {
			return eris.Wrap(err, "download")
		}

		ext := cfg.Download.Ext
		if v, _ := cmd.Flags().GetString("ext"); v != "" {
			ext = v
		}
		tasks := manifest.Tasks(rows, destDir, ext)
		if err := download.EnsureDirs(tasks); err != nil {
			return err
		}

		// The batch downloader never retries.
		d := download.New(newFetcher(1))
		d.Workers = cfg.Download.Workers
		if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
			d.Workers = v
		}
		d.SkipExisting = cfg.Download.SkipExisting
		if cmd.Flags().Changed("overwrite") {
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			d.SkipExisting = !overwrite
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			d.Recorder = st
		}

		zap.L().Info("starting download batch",
			zap.String("manifest", manifestPath),
			zap.Int("tasks", len(tasks)),
			zap.Int("workers", d.Workers),
		)
		report := d.Run(ctx, tasks)
		printDownloadReport(os.Stdout, report)
		return nil
	},
}

func printDownloadReport(w io.Writer, r download.Report) {
	_, _ = fmt.Fprintf(w, "downloaded %d, skipped %d, failed %d\n", r.Succeeded, r.Skipped, r.Failed)
	for _, o := range r.Outcomes {
		if o.Err == nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s [%s]: %v\n", o.Task.Name, o.Kind, o.Err)
	}
}

func init() {
	downloadCmd.Flags().String("sheet", "", "worksheet name (default: first sheet)")
	downloadCmd.Flags().String("ext", "", "output file extension (default from config)")
	downloadCmd.Flags().Int("workers", 0, "concurrent downloads (default from config)")
	downloadCmd.Flags().Bool("overwrite", false, "re-download files that already exist")
	rootCmd.AddCommand(downloadCmd)
}
