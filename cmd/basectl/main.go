package main

import (
	"fmt"
	"os"

	"github.com/cuemby/eventbase/pkg/jetlog"
	"github.com/cuemby/eventbase/pkg/log"
	"github.com/cuemby/eventbase/pkg/manager"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "basectl",
	Short: "basectl - key/value access for an event-sourced base",
	Long: `basectl talks to a base: a key/value store whose writes flow through
a durable JetStream log and whose reads come from a local materialized
projection of that log.

Each invocation opens the named stream through a Manager, performs one
operation, and exits - except "serve", which keeps a Manager running and
exposes it over HTTP.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"basectl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (overridden by flags)")
	rootCmd.PersistentFlags().String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	rootCmd.PersistentFlags().String("data-dir", "", "Parent directory for each base's local store (temp dir if empty)")
	rootCmd.PersistentFlags().String("stream", "", "Stream name to operate on (required for get/put/delete/keys/query/watch)")
	rootCmd.PersistentFlags().Int("keep-alive-seconds", 0, "Idle seconds before an unused base is closed (0 = manager default)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// fileConfig mirrors the subset of manager.Config an operator may want to
// pin in a YAML file instead of repeating on every invocation.
type fileConfig struct {
	NATSURL           string `yaml:"natsUrl"`
	DataDir           string `yaml:"dataDir"`
	StatsStreamName   string `yaml:"statsStreamName"`
	KeepAliveSeconds  int    `yaml:"keepAliveSeconds"`
	CleanupIntervalMS int    `yaml:"cleanupIntervalMs"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// managerConfig builds a manager.Config from the YAML file (if any) layered
// under the command's persistent flags, flags taking precedence.
func managerConfig(cmd *cobra.Command) (manager.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	file, err := loadFileConfig(configPath)
	if err != nil {
		return manager.Config{}, err
	}

	natsURL, _ := cmd.Flags().GetString("nats-url")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	keepAlive, _ := cmd.Flags().GetInt("keep-alive-seconds")

	if !cmd.Flags().Changed("nats-url") && file.NATSURL != "" {
		natsURL = file.NATSURL
	}
	if dataDir == "" {
		dataDir = file.DataDir
	}
	if keepAlive == 0 {
		keepAlive = file.KeepAliveSeconds
	}

	cfg := manager.Config{
		DataDir:           dataDir,
		NATS:              jetlog.NATSOptions{URL: natsURL},
		KeepAliveSeconds:  keepAlive,
		CleanupIntervalMS: file.CleanupIntervalMS,
		Logger:            log.Logger,
	}
	if file.StatsStreamName != "" {
		cfg.StatsStreamNameFn = func(name string) string { return file.StatsStreamName }
	}
	return cfg, nil
}

func requiredStream(cmd *cobra.Command) (string, error) {
	stream, _ := cmd.Flags().GetString("stream")
	if stream == "" {
		return "", fmt.Errorf("--stream is required")
	}
	return stream, nil
}
