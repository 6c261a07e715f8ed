package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/clusterscaler/internal/config"
	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/registry"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or validate clusterscaler configuration",
	Long: `View or validate clusterscaler configuration.

Without arguments, displays the effective configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the registry file",
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/clusterscaler/config.yaml.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	settings := viper.AllSettings()
	// Never echo credentials.
	if notify, ok := settings["notify"].(map[string]any); ok {
		if tg, ok := notify["telegram"].(map[string]any); ok {
			if tok, _ := tg["bot_token"].(string); tok != "" {
				tg["bot_token"] = "********"
			}
		}
	}
	delete(settings, "config")

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				fmt.Fprintf(out, "  - %s\n", e.Error())
			}
			return fmt.Errorf("%d configuration errors", len(verrs))
		}
		return err
	}

	if cfg.Registry.Backend == "file" {
		data, err := os.ReadFile(cfg.Registry.File)
		if err != nil {
			return fmt.Errorf("failed to read registry file: %w", err)
		}
		clusters, err := registry.ParseFile(data, cfg.Defaults)
		if err != nil {
			return fmt.Errorf("registry file %s: %w", cfg.Registry.File, err)
		}
		fmt.Fprintf(out, "Registry file %s: %d clusters\n", cfg.Registry.File, len(clusters))
	}
	fmt.Fprintln(out, "Configuration is valid")
	return nil
}

const defaultConfigContent = `# clusterscaler configuration

scheduler:
  # Time between cycle starts
  interval: 5s
  # Concurrent cluster evaluations per cycle
  worker_pool_size: 8
  load_timeout: 3s
  admin_timeout: 10s
  history_timeout: 2s
  registry_timeout: 2s
  # How long shutdown waits for in-flight evaluations
  drain_timeout: 5s
  sample_window: 5m
  max_sample_age: 5m
  dry_run: false
  failure_backoff:
    threshold: 3
    base: 1m
    max: 30m

# Applied to clusters that omit a field
defaults:
  min_nodes: 1
  max_nodes: 10
  target_utilization: 0.6
  scale_up_cooldown: 5m
  scale_down_cooldown: 20m

# Relative paths resolve against the working directory
registry:
  # file or mongo
  backend: file
  file: clusters.yaml

history:
  # memory, file or mongo
  backend: file
  dir: history

mongo:
  uri: mongodb://localhost:27017
  database: clusterscaler

loadsource:
  prometheus:
    address: http://localhost:9090

admin:
  # eks or dryrun
  backend: eks
  region: ""
  max_rps: 5
  burst: 5

server:
  enabled: true
  addr: ":9102"

tracing:
  enabled: false
  endpoint: localhost:4317

notify:
  telegram:
    enabled: false
    bot_token: ""
    chat_ids: []

logging:
  level: info
`

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: CLUSTERSCALER_* (e.g., CLUSTERSCALER_SCHEDULER_DRY_RUN)")
	return nil
}
