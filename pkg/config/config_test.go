package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvGithubToken, "")
	t.Setenv("REGISTRY_GITHUB_TOKEN", "")

	v := viper.New()
	SetDefaults(v)
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "PrefectHQ", c.Registry.Owner)
	assert.Equal(t, "prefect-collection-registry", c.Registry.Repo)
	assert.Equal(t, "main", c.Registry.BaseBranch)
	assert.Equal(t, 5, c.Submit.MaxConflictRetries)
	assert.Equal(t, 500*time.Millisecond, c.Submit.BackoffBase)
	assert.Equal(t, 30*time.Second, c.Submit.CallTimeout)
	assert.Equal(t, "docs/integrations/catalog", c.Catalog.Path)
	assert.Equal(t, []string{"automated-pr", "collection-metadata"}, c.Update.Labels)
	assert.Equal(t, "json", c.Log.Format)
	assert.Empty(t, c.Github.Token)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
registry:
  owner: acme
  repo: acme-registry
submit:
  max_conflict_retries: 2
  call_timeout: 5s
update:
  concurrency: 8
`), 0o600))

	t.Setenv(EnvGithubToken, "ghp_fallback")
	t.Setenv("REGISTRY_CATALOG_AUTHOR", "Acme")

	c, err := Load(New(file))
	require.NoError(t, err)

	assert.Equal(t, "acme", c.Registry.Owner)
	assert.Equal(t, "acme-registry", c.Registry.Repo)
	assert.Equal(t, 2, c.Submit.MaxConflictRetries)
	assert.Equal(t, 5*time.Second, c.Submit.CallTimeout)
	assert.Equal(t, 8, c.Update.Concurrency)
	assert.Equal(t, "Acme", c.Catalog.Author)
	assert.Equal(t, "ghp_fallback", c.Github.Token)

	t.Setenv("REGISTRY_GITHUB_TOKEN", "ghp_explicit")
	c, err = Load(New(file))
	require.NoError(t, err)
	assert.Equal(t, "ghp_explicit", c.Github.Token)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(New(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(file, []byte("update:\n  concurrency: 0\n"), 0o600))
	_, err = Load(New(file))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update.concurrency")
}
