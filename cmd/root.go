package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andes-analytics/lme-etl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lme-etl",
	Short: "Licencia medica extraction pipeline",
	Long:  "Extracts medical leave certificates from the operational database into the analytics schema, normalizing specialty and professional-type dimensions and triggering downstream scoring.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
