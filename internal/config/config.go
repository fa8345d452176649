// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the runtime configuration: a JSON file for the
// model table and budget overrides, with environment variables layered on
// top so secrets stay out of the file.
package config

import (
	"encoding/json"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/cloudwego/autopatch/internal/ratelimit"
	"github.com/cloudwego/autopatch/llm"
)

// envPrefix namespaces the override variables, e.g. AUTOPATCH_REDIS_ADDR.
const envPrefix = "AUTOPATCH"

// Redis locates the shared counter store. An empty Addr means runs meter
// against an in-process store instead.
type Redis struct {
	Addr     string `json:"addr" envconfig:"REDIS_ADDR"`
	Password string `json:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `json:"db" envconfig:"REDIS_DB"`
}

// Overrides are the knobs that make sense as environment variables.
type Overrides struct {
	APIKey string `envconfig:"API_KEY"`
	Model  string `envconfig:"MODEL"`
	Debug  bool   `envconfig:"DEBUG"`
}

type Config struct {
	// Models is the table of configured backends; Default names the one a
	// run uses unless told otherwise.
	Models  []llm.ModelConfig `json:"models"`
	Default string            `json:"default_model"`

	// Limits overrides the built-in per-provider budgets.
	Limits map[string]ratelimit.Limit `json:"limits"`

	Redis Redis `json:"redis"`
	Debug bool  `json:"debug"`
}

// Load reads path (optional, "" means built-in defaults only) and applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg.Redis); err != nil {
		return nil, errors.Wrap(err, "redis env overrides")
	}
	var over Overrides
	if err := envconfig.Process(envPrefix, &over); err != nil {
		return nil, errors.Wrap(err, "env overrides")
	}
	if over.Debug {
		cfg.Debug = true
	}
	if over.Model != "" {
		cfg.Default = over.Model
	}
	if over.APIKey != "" {
		for i := range cfg.Models {
			if cfg.Models[i].APIKey == "" {
				cfg.Models[i].APIKey = over.APIKey
			}
		}
	}
	return cfg, nil
}

// Model resolves a model config by alias. An empty name resolves the
// default; with no default the first entry wins.
func (c *Config) Model(name string) (llm.ModelConfig, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" && len(c.Models) > 0 {
		return c.Models[0], nil
	}
	for _, m := range c.Models {
		if m.Name == name {
			return m, nil
		}
	}
	return llm.ModelConfig{}, errors.Errorf("model %q not configured", name)
}

// EffectiveLimits merges the file's overrides over the defaults.
func (c *Config) EffectiveLimits() map[string]ratelimit.Limit {
	out := make(map[string]ratelimit.Limit, len(ratelimit.DefaultLimits))
	for provider, limit := range ratelimit.DefaultLimits {
		out[provider] = limit
	}
	for provider, limit := range c.Limits {
		out[provider] = limit
	}
	return out
}
