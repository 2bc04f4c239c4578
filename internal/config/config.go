package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"carteira/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the carteira platform.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Logging  Logging        `yaml:"logging"`
	Importer ImporterConfig `yaml:"importer"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ImporterConfig holds parameters for the data importer.
type ImporterConfig struct {
	FinancialsPath  string `yaml:"financials_path"`
	PriceHistory    string `yaml:"price_history_path"`
	IPEABaseURL     string `yaml:"ipea_base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8600
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Importer.RateLimitPerMin == 0 {
		cfg.Importer.RateLimitPerMin = 30
	}
	if cfg.Importer.MaxAttempts == 0 {
		cfg.Importer.MaxAttempts = 3
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IPEA_BASE_URL"); v != "" {
		cfg.Importer.IPEABaseURL = v
	}
}

// ---------------------------------------------------------------------------
// Strategy configs
// ---------------------------------------------------------------------------

// LoadStrategy reads a strategy definition from a YAML file, applies
// defaults, and validates it.
func LoadStrategy(path string) (*domain.StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &domain.StrategyConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing strategy %s: %w", path, err)
	}

	ApplyStrategyDefaults(cfg)
	if err := ValidateStrategy(cfg); err != nil {
		return nil, fmt.Errorf("invalid strategy %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyStrategyDefaults fills unset strategy fields with the documented
// defaults.
func ApplyStrategyDefaults(cfg *domain.StrategyConfig) {
	if cfg.Benchmark == "" {
		cfg.Benchmark = "IBOV"
	}
	if cfg.MaxAssets == 0 {
		cfg.MaxAssets = 10
	}
	if cfg.EntryLogic == "" {
		cfg.EntryLogic = domain.LogicAnd
	}
	if cfg.EntryScoring == "" {
		cfg.EntryScoring = domain.ScoreBalanced
	}
	if cfg.RebalancePeriod == "" {
		cfg.RebalancePeriod = domain.RebalanceMonthly
	}
	if cfg.ContributionFrequency == "" {
		cfg.ContributionFrequency = "none"
	}
}

// ValidateStrategy rejects configurations the engine cannot run.
func ValidateStrategy(cfg *domain.StrategyConfig) error {
	if cfg.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %v", cfg.InitialCapital)
	}
	start, err := cfg.Start()
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	end, err := cfg.End()
	if err != nil {
		return fmt.Errorf("end_date: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("end_date %s must be after start_date %s", cfg.EndDate, cfg.StartDate)
	}
	if cfg.MaxAssets < 1 {
		return fmt.Errorf("max_assets must be at least 1, got %d", cfg.MaxAssets)
	}
	for _, group := range append(append([]domain.CriteriaGroup{}, cfg.EntryCriteria...), cfg.ExitCriteria...) {
		for _, item := range group.Items {
			if err := validateItem(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateItem(item domain.CriteriaItem) error {
	switch item.Operator {
	case domain.OpGreater, domain.OpGreaterEq, domain.OpLess, domain.OpLessEq, domain.OpEqual:
		if item.Value == nil {
			return fmt.Errorf("criteria item %s %s: value required", item.Indicator, item.Operator)
		}
	case domain.OpRange, domain.OpOutsideRange:
		if item.ValueMin == nil || item.ValueMax == nil {
			return fmt.Errorf("criteria item %s %s: value_min and value_max required", item.Indicator, item.Operator)
		}
	default:
		return fmt.Errorf("criteria item %s: unknown operator %q", item.Indicator, item.Operator)
	}
	if item.Indicator == "" {
		return fmt.Errorf("criteria item with operator %s: indicator required", item.Operator)
	}
	return nil
}
