package skillgraph

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage skillgraph configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file with every setting spelled out.

By default the file is written to .skillgraph.yaml in the current directory.
An existing file is never overwritten unless --force is given.`,
	RunE: runConfigInit,
}

var (
	configInitPath  string
	configInitForce bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVarP(&configInitPath, "output", "o", ".skillgraph.yaml", "Output path")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
}

// defaultConfigDocument mirrors the configuration defaults. Kept as nested
// maps so the emitted YAML matches the mapstructure keys exactly.
func defaultConfigDocument() map[string]any {
	return map[string]any{
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"server": map[string]any{
			"host": "localhost",
			"port": 8080,
			"mode": "release",
		},
		"database": map[string]any{
			"driver":   "sqlite",
			"uri":      "./skillgraph.db",
			"username": "",
			"password": "",
			"database": "",
		},
		"engine": map[string]any{
			"knn":                    10,
			"min_similarity":         0.3,
			"resolution":             1.0,
			"min_artifacts":          5,
			"min_graph_size":         3,
			"low_quality_modularity": 0.1,
			"workers":                8,
			"ann":                    true,
			"ann_threshold":          2000,
		},
		"circuit_breaker": map[string]any{
			"enabled":             false,
			"max_requests":        3,
			"interval":            60,
			"timeout":             30,
			"ready_to_trip_ratio": 0.6,
		},
		"telemetry": map[string]any{
			"parquet_path": "",
		},
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if !configInitForce {
		if _, err := os.Stat(configInitPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configInitPath)
		}
	}

	data, err := yaml.Marshal(defaultConfigDocument())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(configInitPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configInitPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	color.Green("Wrote %s", configInitPath)
	return nil
}
