package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded download, conversion, and analysis history",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded download and conversion outcomes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListTasks(ctx, store.TaskFilter{
			Kind:   model.TaskKind(kind),
			Status: model.TaskStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatTaskRuns(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outcome counts per task kind",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListTasks(ctx, store.TaskFilter{Limit: 100000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatTaskStats(os.Stdout, computeTaskStats(runs))
		return nil
	},
}

// -- runs samples --

var runsSamplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List saved spectral samples",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := st.ListSamples(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs samples")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No samples found.")
			return nil
		}

		formatSamples(os.Stdout, recs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("kind", "", "filter by task kind (download, convert)")
	runsListCmd.Flags().String("status", "", "filter by status (succeeded, failed, skipped)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsSamplesCmd.Flags().Int("limit", 20, "max number of samples to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsSamplesCmd)
	rootCmd.AddCommand(runsCmd)
}

// openLedger is initStore for commands that cannot work without one.
func openLedger(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store.path is empty, nothing is recorded")
	}
	return st, nil
}

// taskStats counts outcomes per kind and status.
type taskStats struct {
	Total  int
	ByKind map[model.TaskKind]map[model.TaskStatus]int
	Bytes  int64
}

func computeTaskStats(runs []model.TaskRun) taskStats {
	s := taskStats{Total: len(runs), ByKind: make(map[model.TaskKind]map[model.TaskStatus]int)}
	for _, r := range runs {
		m, ok := s.ByKind[r.Kind]
		if !ok {
			m = make(map[model.TaskStatus]int)
			s.ByKind[r.Kind] = m
		}
		m[r.Status]++
		s.Bytes += r.Bytes
	}
	return s
}

// formatTaskRuns writes a tabular list of runs to out.
func formatTaskRuns(out io.Writer, runs []model.TaskRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tNAME\tSTATUS\tERROR\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------\t-----\t-------")

	for _, r := range runs {
		errText := r.ErrorKind
		if r.Error != "" {
			errText = truncate(strings.TrimSpace(r.ErrorKind+" "+r.Error), 40)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			truncate(r.Name, 30),
			r.Status,
			errText,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatTaskStats writes aggregate stats to out.
func formatTaskStats(out io.Writer, s taskStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	for _, kind := range []model.TaskKind{model.TaskKindDownload, model.TaskKindConvert} {
		m := s.ByKind[kind]
		_, _ = fmt.Fprintf(w, "%s:\t%d succeeded\t%d failed\t%d skipped\n", kind,
			m[model.TaskStatusSucceeded], m[model.TaskStatusFailed], m[model.TaskStatusSkipped])
	}
	_, _ = fmt.Fprintf(w, "Downloaded:\t%.1f MB\n", float64(s.Bytes)/(1<<20))
	_ = w.Flush()
}

func formatSamples(out io.Writer, recs []store.SampleRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLAT\tLON\tPLACE\tWINDOW\tNDVI\tCREATED")
	for _, r := range recs {
		ndvi := "-"
		if v, ok := r.Values.Get("NDVI"); ok {
			ndvi = fmt.Sprintf("%.4f", v)
		}
		place := r.Place
		if r.Region != "" {
			place += ", " + r.Region
		}
		_, _ = fmt.Fprintf(w, "%s\t%.5f\t%.5f\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID), r.Point.Lat, r.Point.Lon, truncate(place, 30),
			r.Dates, ndvi, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
