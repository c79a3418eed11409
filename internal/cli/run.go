package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forPelevin/vidstamp/internal/logger"
	"github.com/forPelevin/vidstamp/internal/pipeline"
	"github.com/forPelevin/vidstamp/internal/types"
)

const apiKeyFile = ".api_key"

var errNoAPIKey = errors.New("no API key: pass --api-key, create " + apiKeyFile + " or set OPENAI_API_KEY")

func run(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	folder, _ := flags.GetString("folder")
	if folder == "" {
		return cmd.Usage()
	}

	envCfg, err := loadEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	apiKeyFlag, _ := flags.GetString("api-key")
	apiKey, err := resolveAPIKey(apiKeyFlag, apiKeyFile, envCfg.APIKey)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return err
	}

	quadrant, _ := flags.GetInt("quadrant")
	if flags.Changed("quadrant") && !types.Quadrant(quadrant).Valid() {
		return fmt.Errorf("config: quadrant must be 1, 2, 3 or 4, got %d", quadrant)
	}
	unix, _ := flags.GetBool("use-unix-timestamp")
	apply, _ := flags.GetBool("apply")
	placeholder, _ := flags.GetString("placeholder")
	progress, _ := flags.GetBool("progress")
	metricsAddr, _ := flags.GetString("metrics-addr")

	cfg := pipeline.Config{
		Folder:          absFolder,
		Quadrant:        types.Quadrant(quadrant),
		UnixLabels:      unix,
		Apply:           apply,
		Workers:         intFlag(cmd, "workers", envCfg.Workers),
		MaxInFlight:     intFlag(cmd, "max-inflight", envCfg.MaxInFlight),
		PlaceholderPath: placeholder,

		FFmpegPath:  envCfg.FFmpegPath,
		FFprobePath: envCfg.FFprobePath,

		APIKey:         apiKey,
		Model:          stringFlag(cmd, "model", envCfg.Model),
		BaseURL:        envCfg.BaseURL,
		AllowedHosts:   envCfg.AllowedHosts,
		MaxRetries:     envCfg.MaxRetries,
		RetryBaseDelay: envCfg.RetryBaseDelay,
		RequestTimeout: envCfg.RequestTimeout,

		MetricsAddr: metricsAddr,
	}
	if progress {
		cfg.Progress = cmd.ErrOrStderr()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(stringFlag(cmd, "log-level", envCfg.LogLevel), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer func() { _ = log.Sync() }()
	cfg.Logger = log

	ctx := cmd.Context()
	if _, err := pipeline.Run(ctx, cfg); err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Warn("stopped by signal")
		return errors.New("interrupted")
	}
	return nil
}

// resolveAPIKey picks the first non-empty key from the flag, the key file
// and the environment.
func resolveAPIKey(flagVal, keyFile, envVal string) (string, error) {
	if k := strings.TrimSpace(flagVal); k != "" {
		return k, nil
	}
	if keyFile != "" {
		b, err := os.ReadFile(keyFile)
		switch {
		case err == nil:
			if k := strings.TrimSpace(string(b)); k != "" {
				return k, nil
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return "", fmt.Errorf("read %s: %w", keyFile, err)
		}
	}
	if k := strings.TrimSpace(envVal); k != "" {
		return k, nil
	}
	return "", errNoAPIKey
}

func intFlag(cmd *cobra.Command, name string, def int) int {
	if !cmd.Flags().Changed(name) {
		return def
	}
	v, _ := cmd.Flags().GetInt(name)
	return v
}

func stringFlag(cmd *cobra.Command, name, def string) string {
	if !cmd.Flags().Changed(name) {
		return def
	}
	v, _ := cmd.Flags().GetString(name)
	return v
}
