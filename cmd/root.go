package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/section"
)

var sectionsFile string

var rootCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Face-based identification and visit logging for campus checkpoints",
	Long: `Checkpoint identifies people at an entry point (dining hall, gym, indoor
sports) by comparing a camera frame against the enrollment gallery through a
pairwise face comparison service, and records every confirmed visit.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&sectionsFile, "sections", "", "YAML file overriding the built-in section catalog")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig() *config.Config {
	cfg := config.Load()
	if sectionsFile != "" {
		cfg.SectionsFile = sectionsFile
	}
	return cfg
}

func loadCatalog(cfg *config.Config) (*section.Catalog, error) {
	if cfg.SectionsFile == "" {
		return section.Default(), nil
	}
	catalog, err := section.Load(cfg.SectionsFile)
	if err != nil {
		return nil, fmt.Errorf("loading sections: %w", err)
	}
	return catalog, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return log, nil
}
