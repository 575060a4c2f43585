package core

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/storage"
	storagestatus "github.com/oneconcern/collection-registry/pkg/storage/status"
)

// DefaultSyncTargetPath is where the core repository keeps its copy of the worker view
const DefaultSyncTargetPath = "src/prefect/server/api/collections_data/views/aggregate-worker-metadata.json"

// SyncRequest asks for a view of the registry to be copied to another repository
type SyncRequest struct {
	// ViewPath in the registry, read from its base branch. It defaults to the worker view.
	ViewPath string

	Target     storage.Repository
	TargetPath string

	// TargetBase is the branch of the target repository the pull request is proposed to. It defaults to "main".
	TargetBase string

	// Branch created in the target repository. A unique name is generated when empty.
	Branch string
}

// SyncResult tells what the sync did
type SyncResult struct {
	Branch      string
	Unchanged   bool
	PullRequest storage.PullRequestResult
}

func (r *SyncRequest) defaults() {
	if r.ViewPath == "" {
		r.ViewPath = model.VarietyWorker.ViewPath()
	}
	if r.Target.Owner == "" && r.Target.Name == "" {
		r.Target = storage.Repository{Owner: "PrefectHQ", Name: model.CoreCollection}
	}
	if r.TargetPath == "" {
		r.TargetPath = DefaultSyncTargetPath
	}
	if r.TargetBase == "" {
		r.TargetBase = model.TrunkBranch
	}
	if r.Branch == "" {
		r.Branch = "update-" + viewStem(r.ViewPath) + "-" + ksuid.New().String()
	}
}

func viewStem(viewPath string) string {
	if name, ok := model.ViewNameFromPath(viewPath); ok {
		return name + "-metadata"
	}
	return "view"
}

// SyncView copies a view from the base branch of the registry to a target repository,
// on a fresh branch, then opens a pull request.
//
// Nothing is proposed when the target already holds the same content.
func (u *Updater) SyncView(ctx context.Context, req SyncRequest) (SyncResult, error) {
	req.defaults()
	result := SyncResult{Branch: req.Branch}
	if req.Branch == req.TargetBase {
		return result, status.ErrInvalidArgument.WrapMessage("refusing to sync directly to the %q branch", req.TargetBase)
	}
	logger := u.l.With(zap.String("view", req.ViewPath), zap.Stringer("target", req.Target), zap.String("branch", req.Branch))

	source, err := u.remote.GetFile(ctx, u.registry, req.ViewPath, u.baseBranch)
	if err != nil {
		return result, fmt.Errorf("reading %s: %w", req.ViewPath, err)
	}

	current, err := u.remote.GetFile(ctx, req.Target, req.TargetPath, req.TargetBase)
	switch {
	case err == nil:
		if bytes.Equal(current.Content, source.Content) {
			logger.Info("target is already in sync")
			result.Unchanged = true
			return result, nil
		}
	case errors.Is(err, storagestatus.ErrNotFound):
		current = storage.File{}
	default:
		return result, fmt.Errorf("reading %s in %s: %w", req.TargetPath, req.Target, err)
	}

	sha, err := u.remote.CommitSHA(ctx, req.Target, req.TargetBase)
	if err != nil {
		return result, fmt.Errorf("resolving head of %s in %s: %w", req.TargetBase, req.Target, err)
	}
	err = u.remote.CreateBranch(ctx, req.Target, req.Branch, sha)
	switch {
	case err == nil:
	case errors.Is(err, storagestatus.ErrExists):
		// a previous sync left the branch: write on top of its copy
		logger.Info("branch exists already")
		current, err = u.remote.GetFile(ctx, req.Target, req.TargetPath, req.Branch)
		switch {
		case err == nil:
		case errors.Is(err, storagestatus.ErrNotFound):
			current = storage.File{}
		default:
			return result, fmt.Errorf("reading %s on %s in %s: %w", req.TargetPath, req.Branch, req.Target, err)
		}
	default:
		return result, fmt.Errorf("creating branch %s in %s: %w", req.Branch, req.Target, err)
	}

	if current.SHA == "" || !bytes.Equal(current.Content, source.Content) {
		if _, err := u.remote.PutFile(ctx, req.Target, storage.PutRequest{
			Path:    req.TargetPath,
			Branch:  req.Branch,
			Message: "Update " + path.Base(req.TargetPath),
			Content: source.Content,
			SHA:     current.SHA,
		}); err != nil {
			return result, fmt.Errorf("writing %s in %s: %w", req.TargetPath, req.Target, err)
		}
	}

	stem := viewStem(req.ViewPath)
	pr, err := u.remote.CreatePullRequest(ctx, req.Target, storage.PullRequest{
		Title: "Automated PR for " + stem + " update",
		Body:  "This is an automated PR to update " + path.Base(req.TargetPath) + ".",
		Head:  req.Branch,
		Base:  req.TargetBase,
	})
	switch {
	case err == nil:
		result.PullRequest = pr
		logger.Info("proposed view update", zap.Int("number", pr.Number), zap.String("url", pr.URL))
	case errors.Is(err, storagestatus.ErrExists):
		logger.Info("a pull request is already open for this branch")
	default:
		return result, fmt.Errorf("opening pull request in %s: %w", req.Target, err)
	}
	return result, nil
}
