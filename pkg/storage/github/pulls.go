package github

import (
	"context"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/storage"
)

// CreatePullRequest opens a pull request when head is ahead of base, then labels it
func (g *githubStore) CreatePullRequest(ctx context.Context, repo storage.Repository, req storage.PullRequest) (storage.PullRequestResult, error) {
	ahead, err := g.aheadBy(ctx, repo, req.Base, req.Head)
	if err != nil {
		return storage.PullRequestResult{}, err
	}
	if ahead == 0 {
		g.l.Info("no commits between branches, skipping pull request",
			zap.Stringer("repo", repo), zap.String("base", req.Base), zap.String("head", req.Head))
		return storage.PullRequestResult{}, nil
	}

	pr, err := g.createPullRequest(ctx, repo, req)
	if err != nil {
		return storage.PullRequestResult{}, err
	}
	res := storage.PullRequestResult{
		Created: true,
		Number:  pr.GetNumber(),
		URL:     pr.GetHTMLURL(),
	}
	if len(req.Labels) == 0 {
		return res, nil
	}
	if err := g.addLabels(ctx, repo, res.Number, req.Labels); err != nil {
		return res, err
	}
	return res, nil
}

func (g *githubStore) aheadBy(ctx context.Context, repo storage.Repository, base, head string) (int, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	comparison, resp, err := g.client.Repositories.CompareCommits(ctx, repo.Owner, repo.Name, base, head, nil)
	if err != nil {
		return 0, toSentinelErrors(resp, err)
	}
	return comparison.GetAheadBy(), nil
}

func (g *githubStore) createPullRequest(ctx context.Context, repo storage.Repository, req storage.PullRequest) (*gh.PullRequest, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	pr, resp, err := g.client.PullRequests.Create(ctx, repo.Owner, repo.Name, &gh.NewPullRequest{
		Title:               gh.String(req.Title),
		Head:                gh.String(req.Head),
		Base:                gh.String(req.Base),
		Body:                gh.String(req.Body),
		MaintainerCanModify: gh.Bool(true),
	})
	if err != nil {
		return nil, toSentinelErrors(resp, err)
	}
	return pr, nil
}

func (g *githubStore) addLabels(ctx context.Context, repo storage.Repository, number int, labels []string) error {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, resp, err := g.client.Issues.AddLabelsToIssue(ctx, repo.Owner, repo.Name, number, labels)
	return toSentinelErrors(resp, err)
}

func (g *githubStore) ListPullRequests(ctx context.Context, repo storage.Repository, state string) ([]storage.PullRequestInfo, error) {
	if state == "" {
		state = storage.StateOpen
	}
	opts := &gh.PullRequestListOptions{State: state, ListOptions: gh.ListOptions{PerPage: perPage}}
	var res []storage.PullRequestInfo
	for {
		page, next, err := g.listPullRequests(ctx, repo, opts)
		if err != nil {
			return nil, err
		}
		for _, pr := range page {
			res = append(res, storage.PullRequestInfo{
				Number: pr.GetNumber(),
				Title:  pr.GetTitle(),
				Head:   pr.GetHead().GetRef(),
				Base:   pr.GetBase().GetRef(),
				State:  pr.GetState(),
				URL:    pr.GetHTMLURL(),
			})
		}
		if next == 0 {
			return res, nil
		}
		opts.Page = next
	}
}

func (g *githubStore) listPullRequests(ctx context.Context, repo storage.Repository, opts *gh.PullRequestListOptions) ([]*gh.PullRequest, int, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer cancel()

	prs, resp, err := g.client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, 0, toSentinelErrors(resp, err)
	}
	return prs, resp.NextPage, nil
}

func (g *githubStore) ClosePullRequest(ctx context.Context, repo storage.Repository, number int) error {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, resp, err := g.client.PullRequests.Edit(ctx, repo.Owner, repo.Name, number, &gh.PullRequest{State: gh.String(storage.StateClosed)})
	if err != nil {
		return toSentinelErrors(resp, err)
	}
	return nil
}
