package core

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/metadata"
	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/storage"
	storagestatus "github.com/oneconcern/collection-registry/pkg/storage/status"
)

const (
	pullRequestTitle = "Update metadata for collection releases"
	pullRequestBody  = "Collection metadata updates are submitted to this PR by an automated update run."
)

// Updater generates and records the metadata of collections, then proposes the changes to the registry
type Updater struct {
	settings
	remote    storage.Remote
	registry  storage.Repository
	source    metadata.ManifestSource
	generator *metadata.Generator
	submitter *Submitter
}

// NewUpdater builds an updater of the registry repository, reading manifests from source
func NewUpdater(remote storage.Remote, registry storage.Repository, source metadata.ManifestSource, opts ...Option) (*Updater, error) {
	if remote == nil || source == nil {
		return nil, status.ErrInvalidArgument.WrapMessage("a remote store and a manifest source are required")
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	if s.releases == nil {
		s.releases = remote
	}
	submitterOpts := append(append(make([]Option, 0, len(opts)+3), opts...),
		Releases(s.releases),
		Validator(s.validator),
		Lock(s.locker),
	)
	submitter, err := NewSubmitter(remote, registry, submitterOpts...)
	if err != nil {
		return nil, err
	}
	return &Updater{
		settings:  s,
		remote:    remote,
		registry:  registry,
		source:    source,
		generator: metadata.NewGenerator(s.validator, metadata.Owner(s.collectionsOwner), metadata.Logger(s.l)),
		submitter: submitter,
	}, nil
}

// Submitter used by this updater
func (u *Updater) Submitter() *Submitter {
	return u.submitter
}

func (u *Updater) latestRelease(ctx context.Context, collection string) (string, error) {
	return u.submitter.latestRelease(ctx, u.l, collection)
}

// UpdateCollection generates the metadata of the latest release of a collection and submits it on branch.
//
// Varieties are submitted one after the other.
func (u *Updater) UpdateCollection(ctx context.Context, collection, branch string) error {
	if err := model.ValidateCollectionName(collection); err != nil {
		return status.ErrInvalidArgument.Wrap(err)
	}
	version, err := u.latestRelease(ctx, collection)
	if err != nil {
		return err
	}
	manifest, err := u.source.Manifest(ctx, collection, version)
	if err != nil {
		return err
	}

	for _, variety := range model.Varieties() {
		record, err := u.generator.Generate(manifest, variety, version)
		if err != nil {
			return status.ErrSchemaValidation.WrapMessage("%s %s metadata: %w", collection, variety, err)
		}
		if err := u.submitter.Submit(ctx, SubmitRequest{
			Metadata:   record,
			Collection: collection,
			Branch:     branch,
			Variety:    variety,
		}); err != nil {
			return err
		}
	}
	u.l.Info("updated collection", zap.String("collection", collection), zap.String("version", version), zap.String("branch", branch))
	return nil
}

// NeedsUpdate tells if the latest release of a collection is not yet recorded on the base branch
func (u *Updater) NeedsUpdate(ctx context.Context, collection string) (bool, error) {
	dir := model.GetPathToSnapshots(collection, model.VarietyBlock)
	var entries []storage.Entry
	err := u.retry.call(ctx, u.l, "list snapshots", func(cctx context.Context) error {
		e, err := u.remote.List(cctx, u.registry, dir, u.baseBranch)
		entries = e
		return err
	})
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsFile() || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		versions = append(versions, model.NormalizeVersion(strings.TrimSuffix(entry.Name, ".json")))
	}
	if len(versions) == 0 {
		return true, nil
	}

	recorded := model.LatestVersion(versions)
	latest, err := u.latestRelease(ctx, collection)
	if err != nil {
		return false, err
	}
	if model.CompareVersions(latest, recorded) == 0 {
		u.l.Info("collection is up to date", zap.String("collection", collection), zap.String("version", latest))
		return false, nil
	}
	return true, nil
}

type catalogEntry struct {
	Author string `yaml:"author"`
}

// CollectionNames lists the collections published by the catalog's author. The core collection is always listed.
func (u *Updater) CollectionNames(ctx context.Context) ([]string, error) {
	catalog := u.catalog
	entries, err := u.remote.List(ctx, catalog.Repository, catalog.Path, catalog.Ref)
	if err != nil {
		return nil, fmt.Errorf("listing catalog %s/%s: %w", catalog.Repository, catalog.Path, err)
	}

	var (
		mx    sync.Mutex
		names []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for _, entry := range entries {
		entry := entry
		if !entry.IsFile() || !strings.HasSuffix(entry.Name, ".yaml") {
			continue
		}
		g.Go(func() error {
			file, err := u.remote.GetFile(gctx, catalog.Repository, path.Join(catalog.Path, entry.Name), catalog.Ref)
			if err != nil {
				return fmt.Errorf("reading catalog entry %s: %w", entry.Name, err)
			}
			var described catalogEntry
			if err := yaml.Unmarshal(file.Content, &described); err != nil {
				u.l.Warn("skipping invalid catalog entry", zap.String("entry", entry.Name), zap.Error(err))
				return nil
			}
			if described.Author != catalog.Author {
				return nil
			}
			mx.Lock()
			names = append(names, strings.TrimSuffix(entry.Name, ".yaml"))
			mx.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(names)
	for _, name := range names {
		if name == model.CoreCollection {
			return names, nil
		}
	}
	return append(names, model.CoreCollection), nil
}

// EnsureBranch creates a branch from the head of the base branch, unless it exists already
func (u *Updater) EnsureBranch(ctx context.Context, branch string) error {
	if branch == model.TrunkBranch || branch == u.baseBranch {
		return status.ErrInvalidArgument.WrapMessage("refusing to use the %q branch for updates", branch)
	}
	exists, err := u.remote.BranchExists(ctx, u.registry, branch)
	if err != nil {
		return err
	}
	if exists {
		u.l.Info("branch exists already", zap.String("branch", branch))
		return nil
	}
	sha, err := u.remote.CommitSHA(ctx, u.registry, u.baseBranch)
	if err != nil {
		return fmt.Errorf("resolving head of %s: %w", u.baseBranch, err)
	}
	err = u.remote.CreateBranch(ctx, u.registry, branch, sha)
	switch {
	case err == nil:
		u.l.Info("created branch", zap.String("branch", branch), zap.String("sha", sha))
	case errors.Is(err, storagestatus.ErrExists):
		u.l.Info("branch exists already", zap.String("branch", branch))
	default:
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// CloseStaleMetadataPRs keeps the latest metadata update branch, deletes the other ones
// and closes their open pull requests. It returns the branch kept.
func (u *Updater) CloseStaleMetadataPRs(ctx context.Context) (string, error) {
	branches, err := u.remote.ListBranches(ctx, u.registry, model.MetadataBranchPrefix)
	if err != nil {
		return "", err
	}
	latest, stale := model.LatestMetadataBranch(branches)
	if latest == "" {
		return "", nil
	}

	for _, branch := range stale {
		err := u.remote.DeleteBranch(ctx, u.registry, branch)
		switch {
		case err == nil:
			u.l.Info("deleted stale branch", zap.String("branch", branch))
		case errors.Is(err, storagestatus.ErrNotFound):
			u.l.Info("stale branch already deleted", zap.String("branch", branch))
		default:
			return "", fmt.Errorf("deleting branch %s: %w", branch, err)
		}
	}

	pulls, err := u.remote.ListPullRequests(ctx, u.registry, storage.StateOpen)
	if err != nil {
		return "", err
	}
	for _, pr := range pulls {
		if !model.IsMetadataBranch(pr.Head) || pr.Head == latest {
			continue
		}
		if err := u.remote.ClosePullRequest(ctx, u.registry, pr.Number); err != nil {
			return "", fmt.Errorf("closing pull request #%d: %w", pr.Number, err)
		}
		u.l.Info("closed stale pull request", zap.Int("number", pr.Number), zap.String("title", pr.Title))
	}
	return latest, nil
}

// Report sums up an update of all collections
type Report struct {
	Branch      string                    `json:"branch" yaml:"branch"`
	UpToDate    []string                  `json:"up_to_date,omitempty" yaml:"up_to_date,omitempty"`
	Succeeded   []string                  `json:"succeeded,omitempty" yaml:"succeeded,omitempty"`
	Failed      []string                  `json:"failed,omitempty" yaml:"failed,omitempty"`
	PullRequest storage.PullRequestResult `json:"pull_request" yaml:"pull_request"`
}

// Body of the pull request proposing the updates
func (r Report) Body() string {
	body := pullRequestBody
	if len(r.Failed) > 0 {
		body += "\n\nNote: Updates failed for: " + strings.Join(r.Failed, ", ")
	}
	return body
}

// UpdateAll records the latest release of every collection needing it, then opens a pull request.
//
// The default metadata branch name is replaced by a unique one. A failing collection does not
// prevent others from being updated: failures are reported with an error matching ErrCollectionFailed.
func (u *Updater) UpdateAll(ctx context.Context, branch string) (Report, error) {
	if branch == "" || branch == model.MetadataBranch {
		branch = model.NewMetadataBranchName()
	}
	report := Report{Branch: branch}
	logger := u.l.With(zap.String("branch", branch))

	if _, err := u.CloseStaleMetadataPRs(ctx); err != nil {
		return report, err
	}
	if err := u.EnsureBranch(ctx, branch); err != nil {
		return report, err
	}

	names, err := u.CollectionNames(ctx)
	if err != nil {
		return report, err
	}

	var (
		mx       sync.Mutex
		failures error
	)
	fail := func(collection string, err error) {
		mx.Lock()
		defer mx.Unlock()
		report.Failed = append(report.Failed, collection)
		failures = multierr.Append(failures, fmt.Errorf("%s: %w", collection, err))
	}

	needed := make([]bool, len(names))
	checks := new(errgroup.Group)
	checks.SetLimit(u.concurrency)
	for i, name := range names {
		i, name := i, name
		checks.Go(func() error {
			need, err := u.NeedsUpdate(ctx, name)
			if err != nil {
				logger.Warn("could not tell if collection needs an update", zap.String("collection", name), zap.Error(err))
				fail(name, err)
				return nil
			}
			needed[i] = need
			return nil
		})
	}
	_ = checks.Wait()

	toUpdate := make([]string, 0, len(names))
	for i, name := range names {
		if needed[i] {
			toUpdate = append(toUpdate, name)
		} else if !contains(report.Failed, name) {
			report.UpToDate = append(report.UpToDate, name)
		}
	}

	if len(toUpdate) == 0 && len(report.Failed) == 0 {
		logger.Info("no new releases to record")
		return report, nil
	}
	logger.Info("recording new releases", zap.Strings("collections", toUpdate))

	updates := new(errgroup.Group)
	updates.SetLimit(u.concurrency)
	for _, name := range toUpdate {
		name := name
		updates.Go(func() error {
			if err := u.UpdateCollection(ctx, name, branch); err != nil {
				logger.Error("failed to update collection", zap.String("collection", name), zap.Error(err))
				fail(name, err)
				return nil
			}
			mx.Lock()
			report.Succeeded = append(report.Succeeded, name)
			mx.Unlock()
			return nil
		})
	}
	_ = updates.Wait()
	sort.Strings(report.Succeeded)
	sort.Strings(report.Failed)

	// the pull request is opened regardless of failures
	pr, err := u.remote.CreatePullRequest(ctx, u.registry, storage.PullRequest{
		Title:  pullRequestTitle,
		Body:   report.Body(),
		Head:   branch,
		Base:   u.baseBranch,
		Labels: u.labels,
	})
	switch {
	case err == nil:
		report.PullRequest = pr
		if pr.Created {
			logger.Info("opened pull request", zap.Int("number", pr.Number), zap.String("url", pr.URL))
		} else {
			logger.Info("nothing to propose: no pull request opened")
		}
	case errors.Is(err, storagestatus.ErrExists):
		logger.Info("a pull request is already open for this branch")
	default:
		failures = multierr.Append(failures, fmt.Errorf("opening pull request: %w", err))
	}

	if failures != nil {
		return report, status.ErrCollectionFailed.Wrap(failures)
	}
	return report, nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
