package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tract-overlays/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tract-overlays",
	Short: "Census tract choropleth overlay server",
	Long:  "Serves switchable choropleth overlays over census tract boundaries, joins per-tract metric datasets, and builds those datasets from the ACS.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; values already in the environment win.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
