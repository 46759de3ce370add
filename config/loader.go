package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/bytepipe/logger"
)

// DefaultEnvPrefix prefixes environment variables read by Load.
const DefaultEnvPrefix = "BYTEPIPE"

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadEnv loads a .env file without overriding variables already set.
func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// Resolver handles finding config and env files.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles returns explicit paths if provided, otherwise the first
// existing candidate in the search paths.
func (r *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = r.first(configCandidates(serviceName))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = r.first(envCandidates(serviceName))
	}
	return resolved
}

func (r *Resolver) first(paths []string) string {
	for _, p := range paths {
		if r.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

func configCandidates(serviceName string) []string {
	var paths []string
	for _, dir := range []string{".", "./config"} {
		paths = append(paths,
			fmt.Sprintf("%s/%s.yml", dir, serviceName),
			fmt.Sprintf("%s/%s.yaml", dir, serviceName),
		)
	}
	return append(paths, "./config/config.yml", "./config.yml")
}

func envCandidates(serviceName string) []string {
	return []string{
		fmt.Sprintf("./.env.%s", serviceName),
		"./.env",
		"./config/.env",
	}
}

// LoaderConfig holds dependencies and optional overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string       // explicit config file path
	EnvFile    string       // explicit .env file path
	EnvPrefix  string       // only variables with this prefix are bound
	Viper      *viper.Viper // instance to load into, e.g. one with bound CLI flags
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnvPrefix sets the environment variable prefix. Empty binds every variable.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = prefix }
}

// WithViper loads into v instead of a fresh instance. Values bound to v
// beforehand, such as command-line flags, take precedence over files and
// environment variables.
func WithViper(v *viper.Viper) LoaderOption {
	return func(lc *LoaderConfig) { lc.Viper = v }
}

// LoadConfig loads configuration for a service into cfg. Values come from, in
// increasing precedence: the YAML config file, the .env file, environment
// variables, and anything explicitly set on the viper instance.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	lc := LoaderConfig{EnvPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}
	v := lc.Viper
	if v == nil {
		v = viper.New()
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)
	log := logger.Get("config")

	if files.ConfigFile != "" {
		if !lc.FileSystem.Exists(files.ConfigFile) {
			log.Warn("config file not found", logger.Fields("path", files.ConfigFile))
		} else {
			v.SetConfigFile(files.ConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config file %s: %w", files.ConfigFile, err)
			}
			log.Debug("config file loaded", logger.Fields("path", files.ConfigFile))
		}
	}

	// .env never overrides variables that are already set.
	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			log.Warn("failed to load .env file", logger.Fields("path", files.EnvFile, logger.FieldError, err.Error()))
		}
	}

	if err := bindEnvVars(v, lc.EnvPrefix, os.Environ()); err != nil {
		return fmt.Errorf("binding environment for service %s: %w", serviceName, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// Load reads the bytepipe service configuration, applies defaults and
// validates it.
func Load(opts ...LoaderOption) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := LoadConfig("bytepipe", &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnvVars binds every variable carrying prefix to the config keys it may
// name. PREFIX_STREAM_HIGH_WATER_MARK binds stream.high_water_mark among
// other variants.
func bindEnvVars(v *viper.Viper, prefix string, environ []string) error {
	if prefix != "" {
		prefix = strings.ToUpper(prefix) + "_"
	}
	for _, env := range environ {
		name, _, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, prefix) || name == prefix {
			continue
		}
		for _, key := range generateEnvKeyVariants(strings.TrimPrefix(name, prefix)) {
			if err := v.BindEnv(key, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// generateEnvKeyVariants creates the key variants an environment variable may
// stand for, from flat to fully nested.
//
//	STREAM_HIGH_WATER_MARK -> [stream_high_water_mark, stream.high.water.mark, stream.high_water_mark, ...]
func generateEnvKeyVariants(envKey string) []string {
	lowerKey := strings.ToLower(envKey)
	parts := strings.Split(lowerKey, "_")

	if len(parts) <= 1 {
		return []string{lowerKey}
	}

	variants := []string{
		lowerKey,
		strings.ReplaceAll(lowerKey, "_", "."),
	}

	// one nesting level at every split point
	for i := 1; i < len(parts); i++ {
		variants = append(variants, strings.Join(parts[:i], ".")+"."+strings.Join(parts[i:], "_"))
	}

	// all but the last part nested
	if len(parts) >= 3 {
		variants = append(variants, strings.Join(parts[:len(parts)-1], ".")+"."+parts[len(parts)-1])
	}

	return removeDuplicates(variants)
}

// removeDuplicates removes duplicate strings from a slice.
func removeDuplicates(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))

	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}
