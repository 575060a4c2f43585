package github

import (
	"context"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"github.com/oneconcern/collection-registry/pkg/storage"
)

const headsPrefix = "refs/heads/"

func (g *githubStore) CommitSHA(ctx context.Context, repo storage.Repository, ref string) (string, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	sha, resp, err := g.client.Repositories.GetCommitSHA1(ctx, repo.Owner, repo.Name, ref, "")
	if err != nil {
		return "", toSentinelErrors(resp, err)
	}
	return strings.TrimSpace(sha), nil
}

func (g *githubStore) CreateBranch(ctx context.Context, repo storage.Repository, name, fromSHA string) error {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, resp, err := g.client.Git.CreateRef(ctx, repo.Owner, repo.Name, &gh.Reference{
		Ref:    gh.String(headsPrefix + name),
		Object: &gh.GitObject{SHA: gh.String(fromSHA)},
	})
	return toSentinelErrors(resp, err)
}

func (g *githubStore) BranchExists(ctx context.Context, repo storage.Repository, name string) (bool, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	_, resp, err := g.client.Repositories.GetBranch(ctx, repo.Owner, repo.Name, name, maxRedirects)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, toSentinelErrors(resp, err)
	}
	return true, nil
}

func (g *githubStore) ListBranches(ctx context.Context, repo storage.Repository, prefix string) ([]string, error) {
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	var names []string
	for {
		page, next, err := g.listBranches(ctx, repo, opts)
		if err != nil {
			return nil, err
		}
		for _, b := range page {
			if strings.HasPrefix(b.GetName(), prefix) {
				names = append(names, b.GetName())
			}
		}
		if next == 0 {
			return names, nil
		}
		opts.Page = next
	}
}

func (g *githubStore) listBranches(ctx context.Context, repo storage.Repository, opts *gh.BranchListOptions) ([]*gh.Branch, int, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer cancel()

	branches, resp, err := g.client.Repositories.ListBranches(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, 0, toSentinelErrors(resp, err)
	}
	return branches, resp.NextPage, nil
}

func (g *githubStore) DeleteBranch(ctx context.Context, repo storage.Repository, name string) error {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := g.client.Git.DeleteRef(ctx, repo.Owner, repo.Name, headsPrefix+name)
	return toSentinelErrors(resp, err)
}
