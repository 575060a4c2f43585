package core

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/storage"
	storagestatus "github.com/oneconcern/collection-registry/pkg/storage/status"
)

// SubmitRequest asks for the metadata of a collection to be recorded on a branch of the registry
type SubmitRequest struct {
	Metadata   model.Record
	Collection string
	Branch     string
	Variety    model.Variety
}

// Submitter records metadata in the registry: an immutable snapshot per release,
// then a merge into the aggregate view of its variety.
//
// A Submitter is safe for concurrent use. Concurrent merges into the same view are
// arbitrated by the version token (SHA) of the view file.
type Submitter struct {
	settings
	store    storage.Store
	registry storage.Repository
}

// NewSubmitter builds a submitter writing to the registry repository
func NewSubmitter(store storage.Store, registry storage.Repository, opts ...Option) (*Submitter, error) {
	if store == nil {
		return nil, status.ErrInvalidArgument.WrapMessage("a store is required")
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	if s.releases == nil {
		releases, ok := store.(storage.Releases)
		if !ok {
			return nil, status.ErrInvalidArgument.WrapMessage("%v does not resolve releases: a release resolver is required", store)
		}
		s.releases = releases
	}
	return &Submitter{
		settings: s,
		store:    store,
		registry: registry,
	}, nil
}

func (s *Submitter) checkRequest(req SubmitRequest) error {
	if req.Branch == "" {
		return status.ErrInvalidArgument.WrapMessage("a branch is required")
	}
	if req.Branch == model.TrunkBranch || req.Branch == s.baseBranch {
		return status.ErrInvalidArgument.WrapMessage("refusing to submit directly to the %q branch", req.Branch)
	}
	if err := model.ValidateCollectionName(req.Collection); err != nil {
		return status.ErrInvalidArgument.Wrap(err)
	}
	if !req.Variety.Valid() {
		return status.ErrInvalidArgument.WrapMessage("unknown metadata variety %q", req.Variety)
	}
	return nil
}

// Submit records the metadata of a collection's latest release on a branch.
//
// Submitting the same metadata twice is a no-op. Empty metadata records an
// empty snapshot and leaves the aggregate view untouched.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) error {
	if err := s.checkRequest(req); err != nil {
		return err
	}
	logger := s.l.With(
		zap.String("collection", req.Collection),
		zap.Stringer("variety", req.Variety),
		zap.String("branch", req.Branch),
	)

	if err := s.validator.ValidateRecord(req.Variety, req.Metadata); err != nil {
		return status.ErrSchemaValidation.Wrap(err)
	}

	version, err := s.latestRelease(ctx, logger, req.Collection)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("version", version))

	wrapped, err := req.Variety.Wrap(req.Metadata)
	if err != nil {
		return fmt.Errorf("wrapping %s metadata: %w", req.Variety, err)
	}

	if err := s.writeSnapshot(ctx, logger, req, version, wrapped); err != nil {
		return err
	}

	if len(req.Metadata) == 0 {
		logger.Info("no metadata to merge: aggregate view left untouched")
		return nil
	}

	return s.mergeView(ctx, logger, req, version, wrapped)
}

func (s *Submitter) latestRelease(ctx context.Context, logger *zap.Logger, collection string) (string, error) {
	repo := storage.Repository{Owner: s.collectionsOwner, Name: collection}
	var version string
	err := s.retry.call(ctx, logger, "latest release", func(cctx context.Context) error {
		v, err := s.releases.LatestRelease(cctx, repo)
		version = v
		return err
	})
	if err != nil {
		return "", fmt.Errorf("resolving latest release of %s: %w", repo, err)
	}
	if version == "" {
		return "", storagestatus.ErrNotFound.WrapMessage("no release for %s", repo)
	}
	return model.NormalizeVersion(version), nil
}

// writeSnapshot records the immutable snapshot of a release. An existing snapshot is left as is.
func (s *Submitter) writeSnapshot(ctx context.Context, logger *zap.Logger, req SubmitRequest, version string, wrapped model.Raw) error {
	content, err := model.MarshalDocument(model.Snapshot{req.Collection: wrapped})
	if err != nil {
		return fmt.Errorf("serializing snapshot: %w", err)
	}
	path := req.Variety.SnapshotPath(req.Collection, version)

	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.retry.call(ctx, logger, "write snapshot", func(cctx context.Context) error {
		_, err := s.store.PutFile(cctx, s.registry, storage.PutRequest{
			Path:    path,
			Branch:  req.Branch,
			Message: fmt.Sprintf("Add %s metadata for %s %s", req.Variety, req.Collection, version),
			Content: content,
		})
		return err
	})

	switch {
	case err == nil:
		logger.Info("recorded snapshot", zap.String("path", path))
	case errors.Is(err, storagestatus.ErrExists), errors.Is(err, storagestatus.ErrConflict):
		logger.Info("snapshot already recorded", zap.String("path", path))
	default:
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}

// mergeView sets the collection's entry in the aggregate view, retrying on stale version tokens
func (s *Submitter) mergeView(ctx context.Context, logger *zap.Logger, req SubmitRequest, version string, wrapped model.Raw) error {
	path := req.Variety.ViewPath()
	logger = logger.With(zap.String("path", path))

	for attempt := 0; attempt < s.retry.MaxConflicts; attempt++ {
		if attempt > 0 {
			if err := s.retry.Sleep(ctx, s.retry.Backoff(attempt-1)); err != nil {
				return err
			}
		}

		var current storage.File
		err := s.retry.call(ctx, logger, "read view", func(cctx context.Context) error {
			f, err := s.store.GetFile(cctx, s.registry, path, req.Branch)
			current = f
			return err
		})
		switch {
		case err == nil:
		case errors.Is(err, storagestatus.ErrNotFound):
			current = storage.File{}
		default:
			return fmt.Errorf("reading aggregate view %s: %w", path, err)
		}

		view, err := model.DecodeView(current.Content)
		if err != nil {
			return fmt.Errorf("decoding aggregate view %s: %w", path, err)
		}
		view[req.Collection] = wrapped

		if err := s.validator.ValidateView(req.Variety, view); err != nil {
			return status.ErrSchemaValidation.Wrap(err)
		}

		content, err := model.MarshalDocument(view)
		if err != nil {
			return fmt.Errorf("serializing aggregate view %s: %w", path, err)
		}
		if current.SHA != "" && bytes.Equal(content, current.Content) {
			logger.Info("aggregate view already up to date")
			return nil
		}

		var commit storage.Commit
		err = s.retry.call(ctx, logger, "write view", func(cctx context.Context) error {
			c, err := s.store.PutFile(cctx, s.registry, storage.PutRequest{
				Path:    path,
				Branch:  req.Branch,
				Message: fmt.Sprintf("Update aggregate %s metadata with %s %s", req.Variety, req.Collection, version),
				Content: content,
				SHA:     current.SHA,
			})
			commit = c
			return err
		})
		switch {
		case err == nil:
			logger.Info("merged into aggregate view", zap.String("sha", commit.SHA), zap.Int("attempt", attempt+1))
			return nil
		case errors.Is(err, storagestatus.ErrConflict), errors.Is(err, storagestatus.ErrExists):
			logger.Info("aggregate view changed concurrently, merging again",
				zap.String("sha", current.SHA), zap.Int("attempt", attempt+1))
		default:
			return fmt.Errorf("writing aggregate view %s: %w", path, err)
		}
	}

	return status.ErrRetryExhausted.WrapMessage("%s: gave up after %d attempts", path, s.retry.MaxConflicts)
}
