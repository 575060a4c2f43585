package localfs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/storage"
	"github.com/oneconcern/collection-registry/pkg/storage/status"
)

func (l *localFS) CreatePullRequest(_ context.Context, repo storage.Repository, req storage.PullRequest) (storage.PullRequestResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.commitSHA(repo, req.Head)
	if err != nil {
		return storage.PullRequestResult{}, err
	}
	base, err := l.commitSHA(repo, req.Base)
	if err != nil {
		return storage.PullRequestResult{}, err
	}
	if head == base {
		l.logger.Info("no changes between branches, skipping pull request",
			zap.Stringer("repo", repo), zap.String("head", req.Head), zap.String("base", req.Base))
		return storage.PullRequestResult{}, nil
	}
	for _, pr := range l.pulls {
		if pr.State == storage.StateOpen && pr.Head == req.Head && pr.Base == req.Base {
			return storage.PullRequestResult{}, status.ErrExists.WrapMessage("a pull request already exists for %s:%s", repo.Owner, req.Head)
		}
	}
	number := len(l.pulls) + 1
	info := storage.PullRequestInfo{
		Number: number,
		Title:  req.Title,
		Head:   req.Head,
		Base:   req.Base,
		State:  storage.StateOpen,
		URL:    fmt.Sprintf("file://%s/pull/%d", repo, number),
	}
	l.pulls = append(l.pulls, info)
	l.logger.Info("opened local pull request",
		zap.Stringer("repo", repo), zap.Int("number", number), zap.String("title", req.Title),
		zap.String("head", req.Head), zap.String("base", req.Base), zap.Strings("labels", req.Labels))
	return storage.PullRequestResult{Created: true, Number: number, URL: info.URL}, nil
}

func (l *localFS) ListPullRequests(_ context.Context, _ storage.Repository, state string) ([]storage.PullRequestInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var res []storage.PullRequestInfo
	for _, pr := range l.pulls {
		if state == storage.StateAll || state == "" || pr.State == state {
			res = append(res, pr)
		}
	}
	return res, nil
}

func (l *localFS) ClosePullRequest(_ context.Context, repo storage.Repository, number int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if number < 1 || number > len(l.pulls) {
		return status.ErrNotFound.WrapMessage("no pull request #%d in %s", number, repo)
	}
	l.pulls[number-1].State = storage.StateClosed
	l.logger.Info("closed local pull request", zap.Stringer("repo", repo), zap.Int("number", number))
	return nil
}
