// Copyright © 2018 One Concern

// Package github implements the storage interfaces on the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/oneconcern/collection-registry/pkg/storage"
	"github.com/oneconcern/collection-registry/pkg/storage/status"
)

const (
	defaultBaseURL = "https://api.github.com/"
	defaultTimeout = 30 * time.Second
	maxRedirects   = 3
	perPage        = 100
)

var _ storage.Remote = &githubStore{}

type githubStore struct {
	client  *gh.Client
	limiter *rate.Limiter
	l       *zap.Logger

	token      string
	baseURL    string
	httpClient *http.Client
	rps        float64
	timeout    time.Duration
}

// New builds a remote backed by the GitHub REST API
func New(opts ...Option) (storage.Remote, error) {
	g := &githubStore{
		l:          zap.NewNop(),
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, apply := range opts {
		apply(g)
	}

	httpClient := g.httpClient
	if g.token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, g.httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.token}))
	}
	g.client = gh.NewClient(httpClient)

	base := g.baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid github API URL %q: %w", g.baseURL, err)
	}
	g.client.BaseURL = u

	g.limiter = rate.NewLimiter(rate.Inf, 1)
	if g.rps > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(g.rps), 1)
	}
	return g, nil
}

func (g *githubStore) String() string {
	return "github@" + g.client.BaseURL.Host
}

// call waits for the rate limiter, then bounds the context of the call
func (g *githubStore) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, nil, status.ErrTransient.Wrap(err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	return ctx, cancel, nil
}

func (g *githubStore) GetFile(ctx context.Context, repo storage.Repository, path, ref string) (storage.File, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return storage.File{}, err
	}
	defer cancel()

	file, dir, resp, err := g.client.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if err == gh.ErrPathForbidden {
			return storage.File{}, status.ErrInvalidPath.Wrap(err)
		}
		return storage.File{}, toSentinelErrors(resp, err)
	}
	if file == nil {
		return storage.File{}, status.ErrInvalidPath.WrapMessage("%s is a directory with %d entries", path, len(dir))
	}
	content, err := file.GetContent()
	if err != nil {
		return storage.File{}, status.ErrStorageAPI.Wrap(err)
	}
	return storage.File{
		Path:    path,
		Ref:     ref,
		Content: []byte(content),
		SHA:     file.GetSHA(),
	}, nil
}

func (g *githubStore) PutFile(ctx context.Context, repo storage.Repository, req storage.PutRequest) (storage.Commit, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return storage.Commit{}, err
	}
	defer cancel()

	message := req.Message
	if message == "" {
		message = "Update " + req.Path
	}
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: req.Content,
		Branch:  gh.String(req.Branch),
	}

	var (
		res  *gh.RepositoryContentResponse
		resp *gh.Response
	)
	if req.SHA == "" {
		res, resp, err = g.client.Repositories.CreateFile(ctx, repo.Owner, repo.Name, req.Path, opts)
	} else {
		opts.SHA = gh.String(req.SHA)
		res, resp, err = g.client.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, req.Path, opts)
	}
	if err != nil {
		return storage.Commit{}, toSentinelErrors(resp, err)
	}
	return storage.Commit{
		Path:      req.Path,
		SHA:       res.GetContent().GetSHA(),
		CommitSHA: res.Commit.GetSHA(),
	}, nil
}

func (g *githubStore) List(ctx context.Context, repo storage.Repository, dir, ref string) ([]storage.Entry, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	file, contents, resp, err := g.client.Repositories.GetContents(ctx, repo.Owner, repo.Name, dir, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if err == gh.ErrPathForbidden {
			return nil, status.ErrInvalidPath.Wrap(err)
		}
		return nil, toSentinelErrors(resp, err)
	}
	if file != nil {
		return nil, status.ErrInvalidPath.WrapMessage("%s is not a directory", dir)
	}
	entries := make([]storage.Entry, 0, len(contents))
	for _, c := range contents {
		entries = append(entries, storage.Entry{
			Name: c.GetName(),
			Path: c.GetPath(),
			Type: c.GetType(),
			SHA:  c.GetSHA(),
		})
	}
	return entries, nil
}

func (g *githubStore) LatestRelease(ctx context.Context, repo storage.Repository) (string, error) {
	ctx, cancel, err := g.call(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	release, resp, err := g.client.Repositories.GetLatestRelease(ctx, repo.Owner, repo.Name)
	if err != nil {
		return "", toSentinelErrors(resp, err)
	}
	if release.GetTagName() == "" {
		return "", status.ErrNotFound.WrapMessage("latest release of %s has no tag", repo)
	}
	return release.GetTagName(), nil
}
