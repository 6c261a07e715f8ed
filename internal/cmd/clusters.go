package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/mongodb"
	"github.com/Iron-Ham/clusterscaler/internal/registry"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List enabled clusters from the registry",
	Args:  cobra.NoArgs,
	RunE:  runClustersList,
}

var clustersImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a YAML cluster list into the mongo registry",
	Long: `Parse a cluster list in the registry file format and upsert every entry,
enabled or not, into the configured mongo collection. Defaults from the
configuration fill in omitted fields.`,
	Args: cobra.ExactArgs(1),
	RunE: runClustersImport,
}

var clustersJSON bool

func init() {
	clustersCmd.Flags().BoolVar(&clustersJSON, "json", false, "output clusters as JSON")
	clustersCmd.AddCommand(clustersImportCmd)
	rootCmd.AddCommand(clustersCmd)
}

func runClustersList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := buildStack(ctx, cfg, logging.NopLogger(), event.NewBus(), stackParts{registry: true})
	if err != nil {
		return err
	}
	defer func() { _ = s.close(context.WithoutCancel(ctx)) }()

	listCtx, cancel := context.WithTimeout(ctx, cfg.Scheduler.RegistryTimeout)
	defer cancel()
	clusters, err := s.registry.ListEnabledClusters(listCtx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if clustersJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(clusters)
	}
	if len(clusters) == 0 {
		_, err = fmt.Fprintln(out, "No enabled clusters")
		return err
	}
	_, err = fmt.Fprint(out, renderClusters(clusters))
	return err
}

func runClustersImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	clusters, err := registry.ParseFile(data, cfg.Defaults)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.WithoutCancel(ctx)) }()

	reg := registry.NewMongoRegistry(client.Database(cfg.Mongo.Database).Collection(cfg.Registry.MongoCollection), cfg.Defaults)
	for _, c := range clusters {
		if err := reg.Upsert(ctx, c); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d clusters into %s.%s\n",
		len(clusters), cfg.Mongo.Database, cfg.Registry.MongoCollection)
	return err
}
