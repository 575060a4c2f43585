// Copyright © 2018 One Concern

package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Instrument decorates a remote with debug logging of all calls
func Instrument(remote Remote, logger *zap.Logger) Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedRemote{
		remote: remote,
		logger: logger.With(zap.String("storage", remote.String())),
	}
}

type instrumentedRemote struct {
	remote Remote
	logger *zap.Logger
}

func (i *instrumentedRemote) done(op string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		i.logger.Debug("storage "+op+" failed", append(fields, zap.Error(err))...)
		return
	}
	i.logger.Debug("storage "+op, fields...)
}

func (i *instrumentedRemote) String() string {
	return i.remote.String()
}

func (i *instrumentedRemote) GetFile(ctx context.Context, repo Repository, path, ref string) (file File, err error) {
	defer func(start time.Time) {
		i.done("get file", start, err, zap.Stringer("repo", repo), zap.String("path", path), zap.String("ref", ref), zap.String("sha", file.SHA))
	}(time.Now())
	return i.remote.GetFile(ctx, repo, path, ref)
}

func (i *instrumentedRemote) PutFile(ctx context.Context, repo Repository, req PutRequest) (commit Commit, err error) {
	defer func(start time.Time) {
		i.done("put file", start, err, zap.Stringer("repo", repo), zap.String("path", req.Path), zap.String("branch", req.Branch),
			zap.String("sha", req.SHA), zap.String("commit", commit.CommitSHA))
	}(time.Now())
	return i.remote.PutFile(ctx, repo, req)
}

func (i *instrumentedRemote) List(ctx context.Context, repo Repository, dir, ref string) (entries []Entry, err error) {
	defer func(start time.Time) {
		i.done("list", start, err, zap.Stringer("repo", repo), zap.String("path", dir), zap.String("ref", ref), zap.Int("entries", len(entries)))
	}(time.Now())
	return i.remote.List(ctx, repo, dir, ref)
}

func (i *instrumentedRemote) CommitSHA(ctx context.Context, repo Repository, ref string) (sha string, err error) {
	defer func(start time.Time) {
		i.done("commit sha", start, err, zap.Stringer("repo", repo), zap.String("ref", ref), zap.String("sha", sha))
	}(time.Now())
	return i.remote.CommitSHA(ctx, repo, ref)
}

func (i *instrumentedRemote) CreateBranch(ctx context.Context, repo Repository, name, fromSHA string) (err error) {
	defer func(start time.Time) {
		i.done("create branch", start, err, zap.Stringer("repo", repo), zap.String("branch", name), zap.String("sha", fromSHA))
	}(time.Now())
	return i.remote.CreateBranch(ctx, repo, name, fromSHA)
}

func (i *instrumentedRemote) BranchExists(ctx context.Context, repo Repository, name string) (exists bool, err error) {
	defer func(start time.Time) {
		i.done("branch exists", start, err, zap.Stringer("repo", repo), zap.String("branch", name), zap.Bool("exists", exists))
	}(time.Now())
	return i.remote.BranchExists(ctx, repo, name)
}

func (i *instrumentedRemote) ListBranches(ctx context.Context, repo Repository, prefix string) (branches []string, err error) {
	defer func(start time.Time) {
		i.done("list branches", start, err, zap.Stringer("repo", repo), zap.String("prefix", prefix), zap.Int("branches", len(branches)))
	}(time.Now())
	return i.remote.ListBranches(ctx, repo, prefix)
}

func (i *instrumentedRemote) DeleteBranch(ctx context.Context, repo Repository, name string) (err error) {
	defer func(start time.Time) {
		i.done("delete branch", start, err, zap.Stringer("repo", repo), zap.String("branch", name))
	}(time.Now())
	return i.remote.DeleteBranch(ctx, repo, name)
}

func (i *instrumentedRemote) LatestRelease(ctx context.Context, repo Repository) (tag string, err error) {
	defer func(start time.Time) {
		i.done("latest release", start, err, zap.Stringer("repo", repo), zap.String("tag", tag))
	}(time.Now())
	return i.remote.LatestRelease(ctx, repo)
}

func (i *instrumentedRemote) CreatePullRequest(ctx context.Context, repo Repository, req PullRequest) (res PullRequestResult, err error) {
	defer func(start time.Time) {
		i.done("create pull request", start, err, zap.Stringer("repo", repo), zap.String("head", req.Head), zap.String("base", req.Base),
			zap.Bool("created", res.Created), zap.Int("number", res.Number))
	}(time.Now())
	return i.remote.CreatePullRequest(ctx, repo, req)
}

func (i *instrumentedRemote) ListPullRequests(ctx context.Context, repo Repository, state string) (prs []PullRequestInfo, err error) {
	defer func(start time.Time) {
		i.done("list pull requests", start, err, zap.Stringer("repo", repo), zap.String("state", state), zap.Int("pulls", len(prs)))
	}(time.Now())
	return i.remote.ListPullRequests(ctx, repo, state)
}

func (i *instrumentedRemote) ClosePullRequest(ctx context.Context, repo Repository, number int) (err error) {
	defer func(start time.Time) {
		i.done("close pull request", start, err, zap.Stringer("repo", repo), zap.Int("number", number))
	}(time.Now())
	return i.remote.ClosePullRequest(ctx, repo, number)
}
