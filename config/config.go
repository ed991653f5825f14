package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/tinker/errors"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".tinker"

// DefaultSystemPrompt steers the model towards creating dedicated files for
// every application or feature it is asked to build.
const DefaultSystemPrompt = `You are a coding assistant that creates separate files for applications and features.
When a user requests to create an application, game, or feature, always create new dedicated files instead of implementing directly in main.py.
Use appropriate file naming conventions and organize code logically.
For example:
- For a snake game, create snake_game.py
- For a web app, create app.py and related files
- For utilities, create utils.py
Only use the search tool for research and documentation purposes.`

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Toolset names a group of capabilities. Entries are glob patterns matched
// against capability names, e.g. "*_file" or "web_*".
type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Shell struct {
	Timeout       time.Duration `yaml:"timeout"`
	KillOnTimeout bool          `yaml:"kill_on_timeout"`
}

type Install struct {
	Command        string        `yaml:"command"`
	DefaultPackage string        `yaml:"default_package"`
	Timeout        time.Duration `yaml:"timeout"`
}

type WebSearch struct {
	Enabled      bool          `yaml:"enabled"`
	MaxResults   int           `yaml:"max_results"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	RatePerMin   int           `yaml:"rate_per_minute"`
	UserAgent    string        `yaml:"user_agent"`
	EndpointURL  string        `yaml:"endpoint_url"`
	CacheEntries int           `yaml:"cache_entries"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Tracing struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type Config struct {
	LLMClient    string      `yaml:"llm"`
	Model        string      `yaml:"model"`
	SystemPrompt string      `yaml:"system_prompt"`
	MaxSteps     int         `yaml:"max_steps"`
	Stop         []string    `yaml:"stop"`
	Toolsets     []Toolset   `yaml:"toolsets"`
	MCPServers   []MCPServer `yaml:"mcp_servers"`
	Shell        Shell       `yaml:"shell"`
	Install      Install     `yaml:"install"`
	WebSearch    WebSearch   `yaml:"web_search"`
	Log          Log         `yaml:"log"`
	Tracing      Tracing     `yaml:"tracing"`
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	return &Config{
		LLMClient:    "mistral",
		Model:        "mistral-large-latest",
		SystemPrompt: DefaultSystemPrompt,
		MaxSteps:     25,
		Toolsets: []Toolset{
			{Name: "default", Tools: []string{"*"}},
		},
		Shell: Shell{
			Timeout: 10 * time.Second,
		},
		Install: Install{
			Command:        "upm add",
			DefaultPackage: "mistralai",
			Timeout:        5 * time.Minute,
		},
		WebSearch: WebSearch{
			Enabled:      true,
			MaxResults:   5,
			CacheTTL:     15 * time.Minute,
			RatePerMin:   30,
			CacheEntries: 100,
		},
		Log: Log{
			Level: "warn",
		},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. When path is non-empty
// only that file is layered over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", path)
		}
		return cfg, cfg.Validate()
	}

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, DirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, DirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, cfg.Validate()
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal only overwrites fields present in the YAML, so each layer
	// replaces what it names and inherits the rest.
	return yaml.Unmarshal(data, cfg)
}

// Validate checks fields that have no safe fallback.
func (c *Config) Validate() error {
	switch c.LLMClient {
	case "mistral", "openai", "anthropic", "gemini", "bedrock", "mock", "":
	default:
		return errors.New("unknown llm %q: must be one of mistral, openai, anthropic, gemini, bedrock, mock", c.LLMClient)
	}
	if c.MaxSteps <= 0 {
		return errors.New("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.Shell.Timeout <= 0 {
		return errors.New("shell.timeout must be positive, got %s", c.Shell.Timeout)
	}
	if c.Install.Timeout <= 0 {
		return errors.New("install.timeout must be positive, got %s", c.Install.Timeout)
	}
	return nil
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	// Fallback to default if a specific toolset was requested but not found
	return c.GetToolset("default")
}
