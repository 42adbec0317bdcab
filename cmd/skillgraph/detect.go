package skillgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skillmesh/skillgraph/pkg/config"
)

var detectCmd = &cobra.Command{
	Use:   "detect <org-id>",
	Short: "Run community detection for an organization",
	Long: `Run community detection for one organization and print the result.

The engine builds a similarity graph over the organization's embedded
artifacts, clusters it with Louvain modularity optimization, and atomically
replaces the organization's stored community assignments. Runs on
organizations with too little signal are skipped and leave the previous
assignments in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

var detectTimeout time.Duration

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().DurationVar(&detectTimeout, "timeout", 5*time.Minute, "Detection timeout")
	detectCmd.Flags().String("db-driver", "sqlite", "Database driver (sqlite, neo4j, memory)")
	detectCmd.Flags().String("db-uri", "./skillgraph.db", "Database URI/path")
	detectCmd.Flags().String("db-username", "", "Database username (neo4j only)")
	detectCmd.Flags().String("db-password", "", "Database password (neo4j only)")
	detectCmd.Flags().String("db-database", "", "Database name (neo4j only)")
	detectCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for telemetry (errors and detection runs)")
}

func runDetect(cmd *cobra.Command, args []string) error {
	orgID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("db-username") {
		cfg.Database.Username, _ = cmd.Flags().GetString("db-username")
	}
	if cmd.Flags().Changed("db-password") {
		cfg.Database.Password, _ = cmd.Flags().GetString("db-password")
	}
	if cmd.Flags().Changed("db-database") {
		cfg.Database.Database, _ = cmd.Flags().GetString("db-database")
	}
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}

	engine, _, cleanup, err := initializeEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
	defer cancel()

	result, err := engine.DetectCommunities(ctx, orgID)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if result.Skipped != "" {
		color.Yellow("Skipped: %s", result.Skipped)
		fmt.Printf("  org:   %s\n", result.OrgID)
		fmt.Printf("  nodes: %d\n", result.NodeCount)
		fmt.Println("Previous assignments remain in effect.")
		return nil
	}

	color.Green("Detected %d communities in %s", result.CommunityCount, result.Duration.Round(time.Millisecond))
	fmt.Printf("  org:        %s\n", result.OrgID)
	fmt.Printf("  run:        %s\n", result.RunID)
	fmt.Printf("  nodes:      %d\n", result.NodeCount)
	fmt.Printf("  edges:      %d\n", result.EdgeCount)
	fmt.Printf("  modularity: %.4f\n", result.Modularity)
	if result.LowQuality {
		color.Yellow("  partition quality is low; assignments persisted anyway")
	}
	return nil
}
