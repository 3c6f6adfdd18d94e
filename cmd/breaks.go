package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tract-overlays/internal/metric"
	"github.com/sells-group/tract-overlays/internal/overlay"
)

// bracketYAML leaves max off the unbounded last bracket, the form overlay
// files use.
type bracketYAML struct {
	Min   float64  `yaml:"min"`
	Max   *float64 `yaml:"max,omitempty"`
	Color string   `yaml:"color"`
}

var breaksCmd = &cobra.Command{
	Use:   "breaks <dataset.csv>",
	Short: "Derive quantile brackets from a value,GEOID dataset",
	Long: "Reads every value in a tract dataset column, drops negative and non-numeric values, " +
		"and prints a YAML bracket table split at evenly spaced quantiles.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bands, _ := cmd.Flags().GetInt("bands")
		valueCol, _ := cmd.Flags().GetInt("value-column")

		if bands < 1 || bands > len(overlay.DefaultRamp) {
			return eris.Errorf("breaks: --bands must be between 1 and %d", len(overlay.DefaultRamp))
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "breaks: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		parsed, total, err := metric.ParseColumn(cmd.Context(), f, valueCol)
		if err != nil {
			return err
		}
		var (
			values []float64
			sum    float64
		)
		for _, v := range parsed {
			if v >= 0 {
				values = append(values, v)
				sum += v
			}
		}

		brackets, err := overlay.QuantileBrackets(values, overlay.DefaultRamp[:bands])
		if err != nil {
			return err
		}

		out := make([]bracketYAML, len(brackets))
		for i, b := range brackets {
			out[i] = bracketYAML{Min: b.Min, Color: b.Color}
			if !b.Unbounded() {
				out[i].Max = &b.Max
			}
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# average: %.2f\n", sum/float64(len(values)))
		fmt.Fprintf(w, "# clean values: %d / %d records\n", len(values), total)

		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"brackets": out}); err != nil {
			return eris.Wrap(err, "breaks: encode")
		}
		return enc.Close()
	},
}

func init() {
	breaksCmd.Flags().Int("bands", len(overlay.DefaultRamp), "number of color bands")
	breaksCmd.Flags().Int("value-column", overlay.DefaultColumns.Value, "zero-based value column")
	rootCmd.AddCommand(breaksCmd)
}
