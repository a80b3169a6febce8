package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "spectral-cli",
	Short: "Sentinel-2 spectral analysis and vineyard outline tooling",
	Long:  "Samples spectral indices at points, picks random land points, finds the nearest populated place, and bulk downloads and converts vineyard outlines.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
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
