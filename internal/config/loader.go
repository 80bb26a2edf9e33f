package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from layered sources, lowest priority
// first:
//  1. Defaults in code.
//  2. base.yaml in the config directory.
//  3. <environment>.yaml.
//  4. local.yaml (development only).
//  5. Environment variables.
//
// The config directory comes from CONFIG_DIR, defaulting to ./config.
// Missing files are not errors; a malformed file is.
func Load() (*Config, error) {
	env := getEnvironment()
	cfg := Default(env)
	cfg.LoadedFrom = []string{"defaults"}

	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "config"
	}

	for _, name := range overlayFiles(env) {
		path := filepath.Join(dir, name)
		applied, err := overlayFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if applied {
			cfg.LoadedFrom = append(cfg.LoadedFrom, path)
		}
	}

	applyEnv(cfg)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad loads the configuration and panics on error. For main() only.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func overlayFiles(env Environment) []string {
	files := []string{
		"base.yaml",
		strings.ToLower(string(env)) + ".yaml",
	}
	if env == Development {
		files = append(files, "local.yaml")
	}
	return files
}

// overlayFile decodes one YAML file over cfg. Returns false when the file
// does not exist.
func overlayFile(path string, cfg *Config) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}
