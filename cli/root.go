package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/compozy/docqa/cli/cmd/ingest"
	"github.com/compozy/docqa/cli/cmd/start"
	"github.com/compozy/docqa/cli/helpers"
	"github.com/compozy/docqa/pkg/config"
	"github.com/compozy/docqa/pkg/logger"
	"github.com/compozy/docqa/pkg/version"
)

const (
	defaultConfigFile = "docqa.yaml"
	defaultEnvFile    = ".env"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "docqa",
		Short:             "Conversational question answering over a document corpus",
		Version:           version.Get().String(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupCommand,
	}
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the YAML configuration file")
	flags.String("env-file", defaultEnvFile, "Path to the environment file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")
	root.AddCommand(
		start.NewStartCommand(),
		ingest.NewIngestCommand(),
	)
	return root
}

// setupCommand loads the environment file and configuration, then attaches
// the config manager and logger to the command context.
func setupCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := loadEnvFile(cmd); err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	manager := config.NewManager(config.NewService())
	cfg, err := manager.Load(ctx, config.NewYAMLProvider(configFile), config.NewCLIProvider(changedFlags(cmd)))
	if err != nil {
		return err
	}
	logLevel, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") {
		logLevel = cfg.Runtime.LogLevel
	}
	log := logger.SetupLogger(logLevel, logJSON, logSource)
	ctx = config.ContextWithManager(ctx, manager)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	log.Debug("Configuration loaded", "config_file", configFile, "environment", cfg.Runtime.Environment)
	for _, o := range manager.Service.Overrides() {
		log.Debug("Configuration override", "key", o.Path, "source", o.Source, "value", o.Value)
	}
	return nil
}

func loadEnvFile(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return err
	}
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

// changedFlags collects explicitly set flags with their typed values.
func changedFlags(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if _, ok := config.CLIFlagPaths[f.Name]; !ok {
			return
		}
		switch f.Value.Type() {
		case "int":
			if v, err := cmd.Flags().GetInt(f.Name); err == nil {
				out[f.Name] = v
			}
		case "bool":
			if v, err := cmd.Flags().GetBool(f.Name); err == nil {
				out[f.Name] = v
			}
		default:
			out[f.Name] = f.Value.String()
		}
	})
	return out
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := RootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		writeError(err)
		return 1
	}
	return 0
}

func writeError(err error) {
	helpers.WriteError(os.Stderr, helpers.Categorize(err), helpers.ShouldUseColor(os.Stderr))
}
