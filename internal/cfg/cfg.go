// Package cfg resolves runtime configuration for the glassbox binaries:
// an optional YAML file pointed at by GLASSBOX_CONFIG, overridden by
// environment variables, then range-validated before anything starts.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"glassbox/internal/common"
)

// Load resolves Settings from the YAML file named by GLASSBOX_CONFIG when
// set, otherwise from environment variables alone. Environment variables
// always win over file values.
func Load() (Settings, error) {
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	modelTimeout := 10 * time.Second
	if config.Model.Timeout != "" {
		if d, err := time.ParseDuration(config.Model.Timeout); err == nil {
			modelTimeout = d
		}
	}

	settings := Settings{
		ListenAddr:   getEnvOrDefault(common.EnvListenAddr, stringOr(config.Server.ListenAddr, common.DefaultListenAddr)),
		DataPath:     getEnvOrDefault(common.EnvDataPath, config.Data.Path),
		TextColumn:   getEnvOrDefault(common.EnvTextColumn, stringOr(config.Data.TextColumn, common.DefaultTextColumn)),
		TargetColumn: getEnvOrDefault(common.EnvTargetColumn, stringOr(config.Data.TargetColumn, common.DefaultTargetColumn)),
		VocabSize:    getIntFromEnvOrConfig(common.EnvVocabSize, config.Pipeline.VocabSize, common.DefaultVocabSize),
		VocabName:    getEnvOrDefault(common.EnvVocabName, config.Pipeline.VocabName),
		Loss:         getEnvOrDefault(common.EnvLoss, stringOr(config.Engine.Loss, common.DefaultLoss)),
		Repeats:      getIntFromEnvOrConfig(common.EnvRepeats, config.Engine.Repeats, common.DefaultRepeats),
		ALEBins:      getIntFromEnvOrConfig(common.EnvALEBins, config.Engine.ALEBins, common.DefaultALEBins),
		LocalSamples: getIntFromEnvOrConfig(common.EnvLocalSamples, config.Engine.LocalSamples, common.DefaultLocalSamples),
		LocalBudget:  getIntFromEnvOrConfig(common.EnvLocalBudget, config.Engine.LocalBudget, common.DefaultLocalBudget),
		Workers:      getIntFromEnvOrConfig(common.EnvWorkers, config.Engine.Workers, common.DefaultWorkers),
		Seed:         getInt64FromEnvOrConfig(common.EnvSeed, config.Engine.Seed, common.DefaultSeed),
		ModelWeights: getEnvOrDefault(common.EnvModelWeights, config.Model.Weights),
		ModelURL:     getEnvOrDefault(common.EnvModelURL, config.Model.URL),
		ModelTimeout: getDurationOrDefault(common.EnvModelTimeout, modelTimeout),
		StorePath:    getEnvOrDefault(common.EnvStorePath, stringOr(config.System.StorePath, common.DefaultStorePath)),
		JobLimit:     getIntFromEnvOrConfig(common.EnvJobLimit, config.Server.JobLimit, common.DefaultJobLimit),
		LogLevel:     getEnvOrDefault(common.EnvLogLevel, stringOr(config.System.LogLevel, common.DefaultLogLevel)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ListenAddr:   getEnvOrDefault(common.EnvListenAddr, common.DefaultListenAddr),
		DataPath:     os.Getenv(common.EnvDataPath), // optional for glassboxd, required by the CLI
		TextColumn:   getEnvOrDefault(common.EnvTextColumn, common.DefaultTextColumn),
		TargetColumn: getEnvOrDefault(common.EnvTargetColumn, common.DefaultTargetColumn),
		VocabSize:    getIntOrDefault(common.EnvVocabSize, common.DefaultVocabSize),
		VocabName:    os.Getenv(common.EnvVocabName),
		Loss:         getEnvOrDefault(common.EnvLoss, common.DefaultLoss),
		Repeats:      getIntOrDefault(common.EnvRepeats, common.DefaultRepeats),
		ALEBins:      getIntOrDefault(common.EnvALEBins, common.DefaultALEBins),
		LocalSamples: getIntOrDefault(common.EnvLocalSamples, common.DefaultLocalSamples),
		LocalBudget:  getIntOrDefault(common.EnvLocalBudget, common.DefaultLocalBudget),
		Workers:      getIntOrDefault(common.EnvWorkers, common.DefaultWorkers),
		Seed:         getInt64OrDefault(common.EnvSeed, common.DefaultSeed),
		ModelWeights: os.Getenv(common.EnvModelWeights),
		ModelURL:     os.Getenv(common.EnvModelURL),
		ModelTimeout: getDurationOrDefault(common.EnvModelTimeout, 10*time.Second),
		StorePath:    getEnvOrDefault(common.EnvStorePath, common.DefaultStorePath),
		JobLimit:     getIntOrDefault(common.EnvJobLimit, common.DefaultJobLimit),
		LogLevel:     getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func stringOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings range-checks every value that can take the engine down
// mid-run; anything out of bounds fails loudly before work starts.
func validateSettings(settings *Settings) error {
	if settings.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if settings.TargetColumn == "" {
		return fmt.Errorf("%s", common.ErrMsgTargetRequired)
	}

	if settings.VocabSize < common.MinVocabSize || settings.VocabSize > common.MaxVocabSize {
		return fmt.Errorf("vocabulary size must be between %d and %d, got %d",
			common.MinVocabSize, common.MaxVocabSize, settings.VocabSize)
	}
	if settings.Repeats <= 0 || settings.Repeats > common.MaxRepeats {
		return fmt.Errorf("repeat count must be between 1 and %d, got %d", common.MaxRepeats, settings.Repeats)
	}
	if settings.ALEBins < common.MinALEBins || settings.ALEBins > common.MaxALEBins {
		return fmt.Errorf("ALE bin count must be between %d and %d, got %d",
			common.MinALEBins, common.MaxALEBins, settings.ALEBins)
	}
	if settings.LocalSamples <= 0 || settings.LocalSamples > common.MaxLocalSamples {
		return fmt.Errorf("local sample count must be between 1 and %d, got %d",
			common.MaxLocalSamples, settings.LocalSamples)
	}
	if settings.LocalBudget <= 0 {
		return fmt.Errorf("local feature budget must be positive, got %d", settings.LocalBudget)
	}
	if settings.LocalSamples < settings.LocalBudget+1 {
		return fmt.Errorf("local sample count %d cannot support a budget of %d features",
			settings.LocalSamples, settings.LocalBudget)
	}
	if settings.Workers < 0 || settings.Workers > common.MaxWorkers {
		return fmt.Errorf("worker count must be between 0 and %d, got %d", common.MaxWorkers, settings.Workers)
	}
	if settings.JobLimit <= 0 || settings.JobLimit > common.MaxJobLimit {
		return fmt.Errorf("job limit must be between 1 and %d, got %d", common.MaxJobLimit, settings.JobLimit)
	}
	if settings.ModelTimeout < common.MinModelTimeout*time.Second || settings.ModelTimeout > common.MaxModelTimeout*time.Second {
		return fmt.Errorf("model timeout must be between %ds and %ds, got %v",
			common.MinModelTimeout, common.MaxModelTimeout, settings.ModelTimeout)
	}
	if settings.ModelWeights != "" && settings.ModelURL != "" {
		return fmt.Errorf("model weights file and model URL are mutually exclusive")
	}
	if _, err := loadableLoss(settings.Loss); err != nil {
		return err
	}

	return nil
}

// loadableLoss accepts the loss names the engine resolves at runtime.
func loadableLoss(name string) (string, error) {
	switch name {
	case "", "one_minus_auc", "log_loss", "brier":
		return name, nil
	default:
		return "", fmt.Errorf("unknown loss %q", name)
	}
}
