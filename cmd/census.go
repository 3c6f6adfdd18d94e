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

	"github.com/sells-group/tract-overlays/internal/config"
	"github.com/sells-group/tract-overlays/internal/resilience"
	"github.com/sells-group/tract-overlays/pkg/census"
)

var censusCmd = &cobra.Command{
	Use:   "census",
	Short: "Build tract datasets from the American Community Survey",
}

var censusFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch ACS 5-year tract tables and write value,GEOID datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			cfg.Census.OutDir = out
		}
		if err := cfg.Validate("census"); err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		names, _ := cmd.Flags().GetStringSlice("datasets")

		datasets := census.Datasets()
		if len(names) > 0 {
			var unknown []string
			datasets, unknown = census.Lookup(names)
			if len(unknown) > 0 {
				return eris.Errorf("census: unknown datasets %s", strings.Join(unknown, ", "))
			}
		}

		w := &census.Writer{
			Client: census.NewClient(cfg.Census.Key,
				census.WithBaseURL(cfg.Census.BaseURL),
				census.WithRetry(resilience.FromSettings(cfg.Fetch.MaxRetries, cfg.Fetch.RetryBackoffMs)),
			),
			Query: census.Query{
				Year:   cfg.Census.Year,
				State:  cfg.Census.State,
				County: cfg.Census.County,
			},
			OutDir:      cfg.Census.OutDir,
			Force:       force,
			Concurrency: 2,
		}
		results, err := w.Run(cmd.Context(), datasets)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATASET\tROWS\tDROPPED\tPATH")
		for _, r := range results {
			rows := fmt.Sprint(r.Rows)
			if r.Existed {
				rows = "exists"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Dataset, rows, r.Dropped, r.Path)
		}
		return tw.Flush()
	},
}

var censusLatchCmd = &cobra.Command{
	Use:   "latch <file-or-url>",
	Short: "Convert a LATCH vehicle-miles extract into the CO2 per household dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			cfg.Census.OutDir = out
		}
		if err := cfg.Validate("census"); err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		w := &census.Writer{
			Query: census.Query{
				Year:   cfg.Census.Year,
				State:  cfg.Census.State,
				County: cfg.Census.County,
			},
			OutDir: cfg.Census.OutDir,
			Force:  force,
		}
		res, stats, err := w.WriteLatch(cmd.Context(), latchDownloader(cfg, args[0]))
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATASET\tROWS\tDROPPED\tOUTSIDE\tPATH")
		if res.Existed {
			fmt.Fprintf(tw, "%s\texists\t0\t0\t%s\n", res.Dataset, res.Path)
		} else {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", res.Dataset, res.Rows, res.Dropped, stats.Rows-stats.InArea, res.Path)
		}
		return tw.Flush()
	},
}

// latchDownloader copies location into a temp file under the fetch retry
// policy. The returned file is removed when closed.
func latchDownloader(c *config.Config, location string) func(context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		if c.Geometry.TempDir != "" {
			if err := os.MkdirAll(c.Geometry.TempDir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "census: create %s", c.Geometry.TempDir)
			}
		}
		tmp, err := os.CreateTemp(c.Geometry.TempDir, "latch-*.csv")
		if err != nil {
			return nil, eris.Wrap(err, "census: create temp file")
		}
		path := tmp.Name()
		_ = tmp.Close()

		retry := resilience.FromSettings(c.Fetch.MaxRetries, c.Fetch.RetryBackoffMs)
		retry.OnRetry = resilience.RetryLogger("census", location)
		f := newRouter(c, "")
		err = resilience.Do(ctx, retry, func(ctx context.Context) error {
			_, err := f.DownloadToFile(ctx, location, path)
			return err
		})
		if err != nil {
			_ = os.Remove(path)
			return nil, err
		}

		file, err := os.Open(path)
		if err != nil {
			_ = os.Remove(path)
			return nil, eris.Wrap(err, "census: open download")
		}
		return &tempFile{File: file}, nil
	}
}

type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	if rerr := os.Remove(t.Name()); rerr != nil && err == nil {
		err = eris.Wrap(rerr, "remove temp file")
	}
	return err
}

func init() {
	censusFetchCmd.Flags().Bool("force", false, "overwrite existing dataset files")
	censusFetchCmd.Flags().StringSlice("datasets", nil, "datasets to fetch (default: all)")
	censusFetchCmd.Flags().String("out", "", "output directory (default from config)")
	censusLatchCmd.Flags().Bool("force", false, "overwrite an existing dataset file")
	censusLatchCmd.Flags().String("out", "", "output directory (default from config)")
	censusCmd.AddCommand(censusFetchCmd, censusLatchCmd)
	rootCmd.AddCommand(censusCmd)
}
