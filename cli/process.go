package cli

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chunkr/chunkr/engine/processor"
	"github.com/chunkr/chunkr/pkg/config"
	"github.com/chunkr/chunkr/pkg/logger"
)

func ProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <directory>",
		Short: "Process every oversized file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcess,
	}
	cmd.Flags().StringP("config", "c", "", "path to a YAML config file")
	cmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	cmd.Flags().Bool("delete-original", false, "delete originals after their chunks validate")
	cmd.Flags().Float64("max-file-size-mb", 0, "override the split threshold in megabytes")
	cmd.Flags().String("log-level", "", "log verbosity: debug, info, warn, error")
	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cli: stat %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cli: %q is not a directory", dir)
	}

	log := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.Log.Level),
		Output: cmd.ErrOrStderr(),
		JSON:   cfg.Log.JSON,
	})
	ctx := logger.ContextWithLogger(cmd.Context(), log)

	proc, err := processor.New(cfg, dir)
	if err != nil {
		return err
	}
	defer proc.Close()

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return fmt.Errorf("cli: read recursive flag: %w", err)
	}
	summary, err := proc.Process(ctx, dir, recursive)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("cli: encode summary: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

// loadConfig resolves the effective config: file and environment first, then
// explicit flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("cli: read config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("delete-original") {
		deleteOriginal, err := flags.GetBool("delete-original")
		if err != nil {
			return fmt.Errorf("cli: read delete-original flag: %w", err)
		}
		cfg.Processing.DeleteOriginal = deleteOriginal
	}
	if flags.Changed("max-file-size-mb") {
		size, err := flags.GetFloat64("max-file-size-mb")
		if err != nil {
			return fmt.Errorf("cli: read max-file-size-mb flag: %w", err)
		}
		if size <= 0 {
			return fmt.Errorf("cli: max-file-size-mb must be greater than zero")
		}
		cfg.Processing.MaxFileSizeMB = size
	}
	if flags.Changed("log-level") {
		level, err := flags.GetString("log-level")
		if err != nil {
			return fmt.Errorf("cli: read log-level flag: %w", err)
		}
		cfg.Log.Level = level
	}
	return nil
}
