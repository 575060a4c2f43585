package core

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/collection-registry/pkg/schema"
)

func TestValidateViews(t *testing.T) {
	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"views/aggregate-block-metadata.json":  `{"demo-collection": {"block_types": {}}}`,
		"views/aggregate-flow-metadata.json":   `{"demo-collection": {"demo_flow": {"name": "demo_flow"}}}`,
		"views/aggregate-worker-metadata.json": `{}`,
		"views/demo-flow.json":                 `not even json`,
		"views/README.md":                      `# Views`,
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o600))
	}

	checked, err := ValidateViews(fs, "views", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrValidation)
	assert.Contains(t, err.Error(), "aggregate-flow-metadata.json")
	assert.Equal(t, []string{
		"views/aggregate-block-metadata.json",
		"views/aggregate-flow-metadata.json",
		"views/aggregate-worker-metadata.json",
	}, checked)

	require.NoError(t, fs.Remove("views/aggregate-flow-metadata.json"))
	checked, err = ValidateViews(fs, "views", nil)
	require.NoError(t, err)
	assert.Len(t, checked, 2)

	require.NoError(t, afero.WriteFile(fs, "views/aggregate-task-metadata.json", []byte(`{}`), 0o600))
	_, err = ValidateViews(fs, "views", nil)
	require.Error(t, err, "unknown varieties are reported")
}

func TestFindByCapability(t *testing.T) {
	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"registry/collections/prefect-aws/blocks/v0.4.1.json": `{"prefect-aws": {"block_types": {
			"s3-bucket": {"block_schema": {"capabilities": ["read-path", "write-path"]}},
			"aws-credentials": {"block_schema": {"capabilities": []}}
		}}}`,
		"registry/collections/prefect-gcp/blocks/v0.2.0.json": `{"block_types": {
			"gcs-bucket": {"block_schema": {"capabilities": ["get-directory"]}},
			"no-schema": {"name": "No Schema"}
		}}`,
		"registry/collections/prefect-gcp/flows/v0.2.0.json": `{"prefect-gcp": {}}`,
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o600))
	}

	matches, err := FindByCapability(fs, "registry", []string{"write-path", "get-directory"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "prefect-aws:v0.4.1:s3-bucket", matches[0].String())
	assert.Equal(t, "prefect-gcp:v0.2.0:gcs-bucket", matches[1].String())

	matches, err = FindByCapability(fs, "registry", []string{"put-directory"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
