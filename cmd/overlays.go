package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tract-overlays/internal/config"
	"github.com/sells-group/tract-overlays/internal/expr"
	"github.com/sells-group/tract-overlays/internal/overlay"
)

var overlaysCmd = &cobra.Command{
	Use:   "overlays",
	Short: "Inspect overlay definitions",
}

var overlaysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured overlays",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := config.LoadOverlays(cfg.Overlays)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPROPERTY\tBRACKETS\tSOURCE\tTITLE")
		for i, def := range set.All() {
			id := def.ID
			if i == 0 {
				id += " (default)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", id, def.Property, len(def.Brackets), def.Source, def.Title)
		}
		return tw.Flush()
	},
}

var overlaysCompileCmd = &cobra.Command{
	Use:   "compile [id]",
	Short: "Print the compiled fill-color expression of an overlay",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := config.LoadOverlays(cfg.Overlays)
		if err != nil {
			return err
		}

		def := set.Default()
		if len(args) == 1 {
			var ok bool
			if def, ok = set.Get(args[0]); !ok {
				return eris.Errorf("overlays: unknown overlay %q", args[0])
			}
		}

		legend, _ := cmd.Flags().GetBool("legend")
		var out any = expr.Compile(def, set.Palette())
		if legend {
			out = overlay.BuildLegend(def, set.Palette())
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var overlaysValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate an overlays file (default: the configured one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		oc := cfg.Overlays
		if len(args) == 1 {
			oc.File = args[0]
		}
		if err := cfg.Validate("overlays"); err != nil {
			return err
		}

		set, err := config.LoadOverlays(oc)
		if err != nil {
			return err
		}
		source := oc.File
		if source == "" {
			source = "built-in set"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d overlays in %s (default %s)\n", set.Len(), source, set.Default().ID)
		return nil
	},
}

func init() {
	overlaysCompileCmd.Flags().Bool("legend", false, "print the legend instead of the expression")
	overlaysCmd.AddCommand(overlaysListCmd, overlaysCompileCmd, overlaysValidateCmd)
	rootCmd.AddCommand(overlaysCmd)
}
