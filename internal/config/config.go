// Package config loads quasi-board's runtime configuration: required
// environment variables bound via viper, plus an optional board.yaml
// overlay for static presentation data and the built-in genesis task
// list.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "QUASI"

// Config is the fully-resolved runtime configuration.
type Config struct {
	BoardURL      string `mapstructure:"board_url"`
	DataDir       string `mapstructure:"data_dir"`
	BindAddr      string `mapstructure:"bind_addr"`
	TaskSourceURL string `mapstructure:"task_source_url"`
	GithubToken   string `mapstructure:"github_token"`

	Presentation Presentation
	GenesisTasks []GenesisTask
}

// Presentation is static, rarely-changed actor metadata supplied by an
// optional board.yaml overlay. It never affects ledger or federation
// semantics.
type Presentation struct {
	PreferredUsername string `yaml:"preferred_username"`
	Summary           string `yaml:"summary"`
}

// GenesisTask is one entry of board.yaml's genesis_tasks list. A
// non-empty list replaces the compiled-in three-task fallback list
// (used when the external task source is unreachable) as a whole.
type GenesisTask struct {
	ID     string   `yaml:"id"`
	Title  string   `yaml:"title"`
	URL    string   `yaml:"url"`
	Labels []string `yaml:"labels"`
}

type boardOverlay struct {
	PreferredUsername string        `yaml:"preferred_username"`
	Summary           string        `yaml:"summary"`
	GenesisTasks      []GenesisTask `yaml:"genesis_tasks"`
}

// Load binds environment variables with the QUASI_ prefix and applies
// defaults sufficient to run with zero configuration: an unreachable
// or unset task source falls back to the built-in genesis list.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("board_url", "http://localhost:8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("bind_addr", ":8080")
	v.SetDefault("task_source_url", "")
	v.SetDefault("github_token", "")

	_ = v.BindEnv("board_url", "QUASI_BOARD_URL")
	_ = v.BindEnv("data_dir", "QUASI_DATA_DIR")
	_ = v.BindEnv("bind_addr", "QUASI_BIND_ADDR")
	_ = v.BindEnv("task_source_url", "QUASI_TASK_SOURCE_URL")
	_ = v.BindEnv("github_token", "GITHUB_TOKEN")

	cfg := &Config{
		BoardURL:      v.GetString("board_url"),
		DataDir:       v.GetString("data_dir"),
		BindAddr:      v.GetString("bind_addr"),
		TaskSourceURL: v.GetString("task_source_url"),
		GithubToken:   v.GetString("github_token"),
		Presentation:  defaultPresentation(),
	}

	overlay, err := loadBoardOverlay(filepath.Join(cfg.DataDir, "board.yaml"))
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		cfg.Presentation = Presentation{PreferredUsername: overlay.PreferredUsername, Summary: overlay.Summary}
		cfg.GenesisTasks = overlay.GenesisTasks
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the minimum required shape for the server to start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BoardURL) == "" {
		return fmt.Errorf("config: QUASI_BOARD_URL is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: QUASI_DATA_DIR is required")
	}
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("config: QUASI_BIND_ADDR is required")
	}
	return nil
}

func defaultPresentation() Presentation {
	return Presentation{
		PreferredUsername: "quasi-board",
		Summary:           "A federated task board coordinating human and AI contributors.",
	}
}

// loadBoardOverlay reads an optional board.yaml file. A missing file
// is not an error: it returns (nil, nil).
func loadBoardOverlay(path string) (*boardOverlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	def := defaultPresentation()
	o := &boardOverlay{PreferredUsername: def.PreferredUsername, Summary: def.Summary}
	if err := yaml.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("config: invalid board.yaml: %w", err)
	}
	return o, nil
}
