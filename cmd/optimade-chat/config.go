package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	// Packages
	yaml "gopkg.in/yaml.v3"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Config is the optional configuration file, read from the user's
// configuration directory. Environment variables and flags take precedence
// over values set here.
type Config struct {
	Provider     string                    `yaml:"provider"`
	SystemPrompt string                    `yaml:"system_prompt"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	configDir  = "optimade-chat"
	configFile = "providers.yaml"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// LoadConfig reads the configuration file, returning an empty configuration
// when the file does not exist.
func LoadConfig() (*Config, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return new(Config), nil
	}

	data, err := os.ReadFile(filepath.Join(dir, configDir, configFile))
	if errors.Is(err, fs.ErrNotExist) {
		return new(Config), nil
	} else if err != nil {
		return nil, err
	}

	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// applyConfig fills in globals left unset by flags and environment
func (g *Globals) applyConfig(config *Config) {
	if g.Provider == "" {
		g.Provider = config.Provider
	}
	if g.Provider == "" {
		g.Provider = "openai"
	}

	for name, pc := range config.Providers {
		switch name {
		case "openai":
			fillString(&g.OpenAIKey, pc.APIKey)
			fillString(&g.OpenAIBaseURL, pc.BaseURL)
			fillString(&g.OpenAIModel, pc.Model)
		case "openrouter":
			fillString(&g.OpenRouterKey, pc.APIKey)
			fillString(&g.OpenRouterBaseURL, pc.BaseURL)
			fillString(&g.OpenRouterModel, pc.Model)
		case "deepseek":
			fillString(&g.DeepSeekKey, pc.APIKey)
			fillString(&g.DeepSeekBaseURL, pc.BaseURL)
			fillString(&g.DeepSeekModel, pc.Model)
		}
	}
}

func fillString(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}
