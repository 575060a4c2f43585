// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/oneconcern/collection-registry/pkg/core"
	"github.com/oneconcern/collection-registry/pkg/metadata"
	"github.com/oneconcern/collection-registry/pkg/storage"
	"github.com/oneconcern/collection-registry/pkg/storage/github"
	"github.com/oneconcern/collection-registry/pkg/storage/localfs"
)

// releasesFile maps repositories ("owner/name" or bare names) to their latest release tag, in a local registry
const releasesFile = "releases.yaml"

func initContext() context.Context {
	return context.Background()
}

func loadedConfig() error {
	if registryConfig == nil {
		return fmt.Errorf("no configuration loaded")
	}
	return nil
}

func registryRepository() storage.Repository {
	return storage.Repository{Owner: registryConfig.Registry.Owner, Name: registryConfig.Registry.Repo}
}

func newRemote() (storage.Remote, error) {
	if err := loadedConfig(); err != nil {
		return nil, err
	}
	if registryFlags.root.local != "" {
		remote, err := newLocalRemote(registryFlags.root.local)
		if err != nil {
			return nil, err
		}
		return storage.Instrument(remote, logger), nil
	}

	gh := registryConfig.Github
	if gh.Token == "" {
		logger.Warn("no github token configured: calls to the API are anonymous")
	}
	remote, err := github.New(
		github.Token(gh.Token),
		github.BaseURL(gh.APIURL),
		github.RequestsPerSecond(gh.RequestsPerSecond),
		github.CallTimeout(registryConfig.Submit.CallTimeout),
		github.Logger(logger),
	)
	if err != nil {
		return nil, err
	}
	return storage.Instrument(remote, logger), nil
}

func newLocalRemote(dir string) (storage.Remote, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), root)
	releases, err := loadReleases(fs)
	if err != nil {
		return nil, err
	}
	logger.Debug("using local registry", zap.String("root", root))
	return localfs.New(fs, localfs.WithReleases(releases), localfs.WithLogger(logger))
}

func loadReleases(fs afero.Fs) (storage.Releases, error) {
	data, err := afero.ReadFile(fs, releasesFile)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.NewStaticReleases(nil), nil
		}
		return nil, err
	}
	var tags map[string]string
	if err = yaml.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", releasesFile, err)
	}
	return storage.NewStaticReleases(tags), nil
}

func retryPolicy() core.RetryPolicy {
	s := registryConfig.Submit
	return core.RetryPolicy{
		MaxConflicts: s.MaxConflictRetries,
		MaxTransient: s.MaxTransientRetries,
		Backoff:      core.ExponentialBackoff(s.BackoffBase, s.BackoffMax),
		Sleep:        core.SleepContext,
		CallTimeout:  s.CallTimeout,
	}
}

func coreOptions() ([]core.Option, error) {
	opts := []core.Option{
		core.Logger(logger),
		core.Retry(retryPolicy()),
		core.BaseBranch(registryConfig.Registry.BaseBranch),
		core.CollectionsOwner(registryConfig.Collections.Owner),
		core.Concurrency(registryConfig.Update.Concurrency),
		core.Labels(registryConfig.Update.Labels),
		core.WithCatalog(core.Catalog{
			Repository: storage.Repository{Owner: registryConfig.Catalog.Owner, Name: registryConfig.Catalog.Repo},
			Ref:        registryConfig.Catalog.Ref,
			Path:       registryConfig.Catalog.Path,
			Author:     registryConfig.Catalog.Author,
		}),
	}
	if registryConfig.Lock.File != "" {
		locker, err := core.NewFileLock(registryConfig.Lock.File, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.Lock(locker))
	}
	return opts, nil
}

func manifestSource(remote storage.Store) metadata.ManifestSource {
	dir := registryConfig.Manifest.Dir
	if registryFlags.update.manifests != "" {
		dir = registryFlags.update.manifests
	}
	if dir != "" {
		return metadata.NewDirSource(afero.NewOsFs(), dir)
	}
	return metadata.NewRemoteSource(remote, registryConfig.Collections.Owner, registryConfig.Manifest.Path)
}

func newSubmitter() (*core.Submitter, error) {
	remote, err := newRemote()
	if err != nil {
		return nil, err
	}
	opts, err := coreOptions()
	if err != nil {
		return nil, err
	}
	return core.NewSubmitter(remote, registryRepository(), opts...)
}

func newUpdater() (*core.Updater, error) {
	remote, err := newRemote()
	if err != nil {
		return nil, err
	}
	opts, err := coreOptions()
	if err != nil {
		return nil, err
	}
	return core.NewUpdater(remote, registryRepository(), manifestSource(remote), opts...)
}
