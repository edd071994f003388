// Package config loads engine tuning from an optional YAML file plus
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config is the engine tuning surface. Zero values fall back to the package
// defaults of the consuming components.
type Config struct {
	BasePenalty    int64         `yaml:"basePenalty"`
	AvgSpeedMph    float64       `yaml:"avgSpeedMph"`
	MinTravel      time.Duration `yaml:"minTravel"`
	ETABuffer      time.Duration `yaml:"etaBuffer"`
	HorizonDays    int           `yaml:"horizonDays"`
	SolverBudgetMS int           `yaml:"solverBudgetMs"`
	SolverSeed     int64         `yaml:"solverSeed"`
	RateLimitRPS   float64       `yaml:"rateLimitRps"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
}

// Load reads the YAML file named by SCHED_CONFIG (if set), then applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load() (Config, error) {
	var c Config
	if path := os.Getenv("SCHED_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BASE_PENALTY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.BasePenalty = n
		}
	}
	if v := os.Getenv("AVG_SPEED_MPH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.AvgSpeedMph = f
		}
	}
	if v := os.Getenv("HORIZON_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HorizonDays = n
		}
	}
	if v := os.Getenv("SOLVER_BUDGET_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SolverBudgetMS = n
		}
	}
	if v := os.Getenv("ETA_BUFFER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ETABuffer = time.Duration(n) * time.Minute
		}
	}
}

// SolverBudget returns the configured budget as a duration, zero when unset.
func (c Config) SolverBudget() time.Duration {
	return time.Duration(c.SolverBudgetMS) * time.Millisecond
}
