package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "xbrl-cli",
	Short: "XBRL and iXBRL financial report parser",
	Long:  "Parses XBRL instance documents and inline XBRL reports, resolves taxonomy schemas and linkbases with local caching, and exports facts as xbrl-json or into a SQLite store.",
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
