package metadata

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/storage/localfs"
)

func TestDirSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "manifests/demo-collection.yaml", []byte(demoManifest), 0o600))
	require.NoError(t, afero.WriteFile(fs, "manifests/liar.yml", []byte(demoManifest), 0o600))
	require.NoError(t, afero.WriteFile(fs, "manifests/other.json", []byte(`{"collection":"other"}`), 0o600))

	source := NewDirSource(fs, "manifests")
	ctx := context.Background()

	m, err := source.Manifest(ctx, "demo-collection", "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "demo-collection", m.Collection)

	m, err = source.Manifest(ctx, "other", "")
	require.NoError(t, err)
	assert.Empty(t, m.Blocks)

	_, err = source.Manifest(ctx, "liar", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNoManifest), "the manifest must describe the requested collection")

	_, err = source.Manifest(ctx, "missing", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNoManifest))
}

func TestRemoteSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "PrefectHQ/demo-collection/v1.0.0/registry.yaml", []byte(demoManifest), 0o600))
	require.NoError(t, fs.MkdirAll("PrefectHQ/empty-collection/v0.1.0", 0o700))
	store, err := localfs.New(fs)
	require.NoError(t, err)

	source := NewRemoteSource(store, "PrefectHQ", "")
	ctx := context.Background()

	m, err := source.Manifest(ctx, "demo-collection", "v1.0.0")
	require.NoError(t, err)
	assert.Len(t, m.Flows, 1)

	_, err = source.Manifest(ctx, "empty-collection", "v0.1.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNoManifest))
}
