package metadata

import (
	"context"
	"os"
	"path"

	"github.com/spf13/afero"

	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/storage"
	storagestatus "github.com/oneconcern/collection-registry/pkg/storage/status"
)

// DefaultManifestPath is the location of the manifest in a collection's repository
const DefaultManifestPath = "registry.yaml"

// ManifestSource loads the manifest of a collection release
type ManifestSource interface {
	Manifest(ctx context.Context, collection, version string) (*Manifest, error)
}

var (
	_ ManifestSource = &DirSource{}
	_ ManifestSource = &RemoteSource{}
)

// DirSource reads manifests named {collection}.yaml from a directory.
// The version of the release is not taken into account.
type DirSource struct {
	fs  afero.Fs
	dir string
}

// NewDirSource builds a manifest source over a directory
func NewDirSource(fs afero.Fs, dir string) *DirSource {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &DirSource{fs: fs, dir: dir}
}

// Manifest of a collection
func (s *DirSource) Manifest(_ context.Context, collection, _ string) (*Manifest, error) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		data, err := afero.ReadFile(s.fs, path.Join(s.dir, collection+ext))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		return parseFor(collection, data)
	}
	return nil, status.ErrNoManifest.WrapMessage("no manifest for %q in %s", collection, s.dir)
}

// RemoteSource reads the manifest from the collection's own repository, at its release tag
type RemoteSource struct {
	store storage.Store
	owner string
	path  string
}

// NewRemoteSource builds a manifest source over collection repositories owned by owner
func NewRemoteSource(store storage.Store, owner, manifestPath string) *RemoteSource {
	if manifestPath == "" {
		manifestPath = DefaultManifestPath
	}
	return &RemoteSource{store: store, owner: owner, path: manifestPath}
}

// Manifest of a collection release
func (s *RemoteSource) Manifest(ctx context.Context, collection, version string) (*Manifest, error) {
	repo := storage.Repository{Owner: s.owner, Name: collection}
	file, err := s.store.GetFile(ctx, repo, s.path, version)
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotFound) {
			return nil, status.ErrNoManifest.WrapMessage("no %s in %s@%s: %v", s.path, repo, version, err)
		}
		return nil, err
	}
	return parseFor(collection, file.Content)
}

func parseFor(collection string, data []byte) (*Manifest, error) {
	m, err := ParseManifest(data)
	if err != nil {
		return nil, status.ErrNoManifest.WrapMessage("invalid manifest for %q: %v", collection, err)
	}
	if m.Collection != collection {
		return nil, status.ErrNoManifest.WrapMessage("manifest describes %q, not %q", m.Collection, collection)
	}
	return m, nil
}
