// Package config describes the runtime configuration of the collection registry tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes all environment variables overriding configuration keys
	EnvPrefix = "REGISTRY"

	// EnvConfigFile points to an explicit configuration file
	EnvConfigFile = "REGISTRY_CONFIG"

	// EnvGithubToken is accepted as a fallback for github.token
	EnvGithubToken = "GITHUB_TOKEN"

	configName = "registry"
)

// Config for the collection registry.
//
// Names of fields follow the serialized keys, so viper can decode them.
type Config struct {
	Github      Github      `json:"github" yaml:"github" mapstructure:"github"`
	Registry    Registry    `json:"registry" yaml:"registry" mapstructure:"registry"`
	Collections Collections `json:"collections" yaml:"collections" mapstructure:"collections"`
	Catalog     Catalog     `json:"catalog" yaml:"catalog" mapstructure:"catalog"`
	Manifest    Manifest    `json:"manifest" yaml:"manifest" mapstructure:"manifest"`
	Submit      Submit      `json:"submit" yaml:"submit" mapstructure:"submit"`
	Lock        Lock        `json:"lock" yaml:"lock" mapstructure:"lock"`
	Update      Update      `json:"update" yaml:"update" mapstructure:"update"`
	Sync        Sync        `json:"sync" yaml:"sync" mapstructure:"sync"`
	Log         Log         `json:"log" yaml:"log" mapstructure:"log"`
}

// Github API access
type Github struct {
	Token             string  `json:"token" yaml:"token" mapstructure:"token"`
	APIURL            string  `json:"api_url" yaml:"api_url" mapstructure:"api_url"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// Registry repository receiving metadata
type Registry struct {
	Owner      string `json:"owner" yaml:"owner" mapstructure:"owner"`
	Repo       string `json:"repo" yaml:"repo" mapstructure:"repo"`
	BaseBranch string `json:"base_branch" yaml:"base_branch" mapstructure:"base_branch"`
}

// Collections locates the repositories of collections
type Collections struct {
	Owner string `json:"owner" yaml:"owner" mapstructure:"owner"`
}

// Catalog lists the collections to publish
type Catalog struct {
	Owner  string `json:"owner" yaml:"owner" mapstructure:"owner"`
	Repo   string `json:"repo" yaml:"repo" mapstructure:"repo"`
	Ref    string `json:"ref" yaml:"ref" mapstructure:"ref"`
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
	Author string `json:"author" yaml:"author" mapstructure:"author"`
}

// Manifest locates collection manifests: a local directory when Dir is set,
// or the file at Path in each collection's repository
type Manifest struct {
	Dir  string `json:"dir" yaml:"dir" mapstructure:"dir"`
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// Submit tunes the update submission retries
type Submit struct {
	MaxConflictRetries  int           `json:"max_conflict_retries" yaml:"max_conflict_retries" mapstructure:"max_conflict_retries"`
	MaxTransientRetries int           `json:"max_transient_retries" yaml:"max_transient_retries" mapstructure:"max_transient_retries"`
	BackoffBase         time.Duration `json:"backoff_base" yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax          time.Duration `json:"backoff_max" yaml:"backoff_max" mapstructure:"backoff_max"`
	CallTimeout         time.Duration `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout"`
}

// Lock file serializing snapshot writes across processes
type Lock struct {
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// Update of all collections
type Update struct {
	Concurrency int      `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	Labels      []string `json:"labels" yaml:"labels" mapstructure:"labels"`
}

// Sync of a view to another repository
type Sync struct {
	TargetRepo string `json:"target_repo" yaml:"target_repo" mapstructure:"target_repo"`
	ViewPath   string `json:"view_path" yaml:"view_path" mapstructure:"view_path"`
	TargetPath string `json:"target_path" yaml:"target_path" mapstructure:"target_path"`
}

// Log settings
type Log struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// SetDefaults registers default values for all configuration keys
func SetDefaults(v *viper.Viper) {
	v.SetDefault("github.api_url", "https://api.github.com/")
	v.SetDefault("github.requests_per_second", 10.0)

	v.SetDefault("registry.owner", "PrefectHQ")
	v.SetDefault("registry.repo", "prefect-collection-registry")
	v.SetDefault("registry.base_branch", "main")

	v.SetDefault("collections.owner", "PrefectHQ")

	v.SetDefault("catalog.owner", "PrefectHQ")
	v.SetDefault("catalog.repo", "prefect")
	v.SetDefault("catalog.ref", "main")
	v.SetDefault("catalog.path", "docs/integrations/catalog")
	v.SetDefault("catalog.author", "Prefect")

	v.SetDefault("manifest.path", "registry.yaml")

	v.SetDefault("submit.max_conflict_retries", 5)
	v.SetDefault("submit.max_transient_retries", 3)
	v.SetDefault("submit.backoff_base", "500ms")
	v.SetDefault("submit.backoff_max", "10s")
	v.SetDefault("submit.call_timeout", "30s")

	v.SetDefault("lock.file", filepath.Join(os.TempDir(), "collection-registry.lock"))

	v.SetDefault("update.concurrency", 4)
	v.SetDefault("update.labels", []string{"automated-pr", "collection-metadata"})

	v.SetDefault("sync.target_repo", "PrefectHQ/prefect")
	v.SetDefault("sync.view_path", "views/aggregate-worker-metadata.json")
	v.SetDefault("sync.target_path", "src/prefect/server/api/collections_data/views/aggregate-worker-metadata.json")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// New prepares a viper instance with defaults, environment bindings and search paths.
//
// An explicit configuration file may be given, otherwise the file named by REGISTRY_CONFIG
// or registry.yaml in the usual locations is used when present.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("github.token", EnvPrefix+"_GITHUB_TOKEN", EnvGithubToken)

	if file == "" {
		file = os.Getenv(EnvConfigFile)
	}
	if file != "" {
		v.SetConfigFile(file)
		return v
	}
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, "."+configName))
	}
	v.AddConfigPath(filepath.Join("/etc", configName))
	return v
}

// Load reads the configuration file, if any, and decodes the configuration
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading configuration file: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate the configuration
func (c *Config) Validate() error {
	switch {
	case c.Registry.Owner == "" || c.Registry.Repo == "":
		return fmt.Errorf("registry.owner and registry.repo are required")
	case c.Registry.BaseBranch == "":
		return fmt.Errorf("registry.base_branch is required")
	case c.Submit.MaxConflictRetries < 1:
		return fmt.Errorf("submit.max_conflict_retries must be at least 1, got %d", c.Submit.MaxConflictRetries)
	case c.Submit.MaxTransientRetries < 0:
		return fmt.Errorf("submit.max_transient_retries cannot be negative, got %d", c.Submit.MaxTransientRetries)
	case c.Update.Concurrency < 1:
		return fmt.Errorf("update.concurrency must be at least 1, got %d", c.Update.Concurrency)
	}
	return nil
}
