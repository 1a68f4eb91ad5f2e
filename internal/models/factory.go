package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mlsvm/internal/svm"
)

const AlgorithmSVC = "svc"

type ModelConfig struct {
	Algorithm string  `yaml:"algorithm"`
	Kernel    string  `yaml:"kernel"`
	Degree    float64 `yaml:"degree"`
	Gamma     float64 `yaml:"gamma"`
	Coef0     float64 `yaml:"coef0"`
	Cost      float64 `yaml:"cost"`
	// ClassCost overrides Cost per encoded class label.
	ClassCost map[int]float64 `yaml:"class_cost"`
	Strategy  string          `yaml:"strategy"`
	// Epochs limits the pairwise updates per sub-model; 0 trains to
	// convergence.
	Epochs    int     `yaml:"epochs"`
	Workers   int     `yaml:"workers"`
	CacheSize float64 `yaml:"cache_size"`
	Eps       float64 `yaml:"eps"`
}

func DefaultConfig(algorithm string) ModelConfig {
	config := ModelConfig{Algorithm: algorithm}

	switch normalizeAlgorithm(algorithm) {
	case AlgorithmSVC:
		params := svm.DefaultKernelParams()
		config.Algorithm = AlgorithmSVC
		config.Kernel = svm.RBF.String()
		config.Degree = params.Degree
		config.Gamma = params.Gamma
		config.Coef0 = params.Coef0
		config.CacheSize = params.CacheSize
		config.Cost = 1
		config.Strategy = "ovo"
		config.Workers = 1
		config.Eps = svm.DefaultEps
	}

	return config
}

// LoadConfig reads a YAML model configuration. Keys missing from the file
// keep their default values.
func LoadConfig(filename string) (ModelConfig, error) {
	config := DefaultConfig(AlgorithmSVC)

	raw, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return config, fmt.Errorf("failed to parse config %s: %w", filename, err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	return config, nil
}

func (c ModelConfig) Validate() error {
	if normalizeAlgorithm(c.Algorithm) != AlgorithmSVC {
		return fmt.Errorf("unknown algorithm: %s", c.Algorithm)
	}
	kind, err := svm.ParseKernelKind(c.Kernel)
	if err != nil {
		return err
	}
	if _, err := svm.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if len(c.ClassCost) == 0 && c.Cost <= 0 {
		return fmt.Errorf("cost must be positive, got %v", c.Cost)
	}
	for class, cost := range c.ClassCost {
		if cost <= 0 {
			return fmt.Errorf("cost for class %d must be positive, got %v", class, cost)
		}
	}
	if kind == svm.Poly && c.Degree <= 0 {
		return fmt.Errorf("poly kernel needs a positive degree, got %v", c.Degree)
	}
	if kind != svm.Linear && kind != svm.SimplePoly && c.Gamma <= 0 {
		return fmt.Errorf("%s kernel needs a positive gamma, got %v", kind, c.Gamma)
	}
	if c.Epochs < 0 || c.Workers < 0 || c.CacheSize < 0 || c.Eps < 0 {
		return fmt.Errorf("epochs, workers, cache_size and eps must not be negative")
	}
	return nil
}

func (c ModelConfig) KernelParams() svm.KernelParams {
	return svm.KernelParams{
		Degree:    c.Degree,
		Gamma:     c.Gamma,
		Coef0:     c.Coef0,
		CacheSize: c.CacheSize,
	}
}

// CreateModel builds an untrained model. Zero numeric fields take the
// algorithm defaults.
func CreateModel(config ModelConfig) (Model, error) {
	switch normalizeAlgorithm(config.Algorithm) {
	case AlgorithmSVC:
		defaults := DefaultConfig(AlgorithmSVC)
		config.Algorithm = AlgorithmSVC
		if config.Kernel == "" {
			config.Kernel = defaults.Kernel
		}
		if config.Degree <= 0 {
			config.Degree = defaults.Degree
		}
		if config.Gamma <= 0 {
			config.Gamma = defaults.Gamma
		}
		if config.Cost <= 0 {
			config.Cost = defaults.Cost
		}
		if config.Strategy == "" {
			config.Strategy = defaults.Strategy
		}
		if config.CacheSize <= 0 {
			config.CacheSize = defaults.CacheSize
		}
		if config.Eps <= 0 {
			config.Eps = defaults.Eps
		}
		if config.Workers <= 0 {
			config.Workers = defaults.Workers
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
		return NewSVC(config), nil

	default:
		return nil, fmt.Errorf("unknown algorithm: %s", config.Algorithm)
	}
}

func normalizeAlgorithm(algorithm string) string {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "svc", "svm":
		return AlgorithmSVC
	default:
		return algorithm
	}
}
