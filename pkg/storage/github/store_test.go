package github

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/storage"
	"github.com/oneconcern/collection-registry/pkg/storage/githubtest"
	"github.com/oneconcern/collection-registry/pkg/storage/status"
)

var testRepo = storage.Repository{Owner: "PrefectHQ", Name: "prefect-collection-registry"}

func setupStore(t *testing.T) (storage.Remote, *githubtest.Server) {
	server := githubtest.NewServer(t)
	store, err := New(BaseURL(server.APIURL()), Token("ghp_test"), CallTimeout(5*time.Second), RequestsPerSecond(0))
	require.NoError(t, err)
	return store, server
}

func TestGetPutFile(t *testing.T) {
	store, server := setupStore(t)
	ctx := context.Background()
	const path = "collections/demo-collection/flows/v1.0.0.json"

	_, err := store.GetFile(ctx, testRepo, path, "main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))

	commit, err := store.PutFile(ctx, testRepo, storage.PutRequest{Path: path, Branch: "main", Message: "Add snapshot", Content: []byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, githubtest.BlobSHA([]byte(`{"a":1}`)), commit.SHA)
	assert.NotEmpty(t, commit.CommitSHA)

	file, err := store.GetFile(ctx, testRepo, path, "main")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(file.Content))
	assert.Equal(t, commit.SHA, file.SHA)

	_, err = store.PutFile(ctx, testRepo, storage.PutRequest{Path: path, Branch: "main", Content: []byte(`{"a":2}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrExists), "creating an existing file: %v", err)

	_, err = store.PutFile(ctx, testRepo, storage.PutRequest{Path: path, Branch: "main", Content: []byte(`{"a":2}`), SHA: "0000"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrConflict), "stale sha: %v", err)

	_, err = store.PutFile(ctx, testRepo, storage.PutRequest{Path: path, Branch: "main", Content: []byte(`{"a":2}`), SHA: file.SHA})
	require.NoError(t, err)
	content, ok := server.File(testRepo.String(), "main", path)
	require.True(t, ok)
	assert.Equal(t, `{"a":2}`, string(content))

	_, err = store.GetFile(ctx, testRepo, "../secrets", "main")
	assert.True(t, errors.Is(err, status.ErrInvalidPath))
}

func TestList(t *testing.T) {
	store, server := setupStore(t)
	ctx := context.Background()
	server.SetFile(testRepo.String(), "main", "collections/prefect-aws/blocks/v0.4.1.json", []byte(`{}`))
	server.SetFile(testRepo.String(), "main", "collections/prefect-aws/blocks/v0.4.2.json", []byte(`{}`))

	entries, err := store.List(ctx, testRepo, "collections/prefect-aws/blocks", "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "v0.4.1.json", entries[0].Name)
	assert.True(t, entries[0].IsFile())

	entries, err = store.List(ctx, testRepo, "collections", "main")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storage.EntryDir, entries[0].Type)

	_, err = store.List(ctx, testRepo, "collections/prefect-gcp/blocks", "main")
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestLatestRelease(t *testing.T) {
	store, server := setupStore(t)
	ctx := context.Background()
	repo := storage.Repository{Owner: "PrefectHQ", Name: "demo-collection"}

	_, err := store.LatestRelease(ctx, repo)
	assert.True(t, errors.Is(err, status.ErrNotFound))

	server.SetRelease(repo.String(), "v1.0.0")
	tag, err := store.LatestRelease(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", tag)
}

func TestBranches(t *testing.T) {
	store, server := setupStore(t)
	ctx := context.Background()

	sha, err := store.CommitSHA(ctx, testRepo, "main")
	require.NoError(t, err)
	require.Len(t, sha, 40)

	require.NoError(t, store.CreateBranch(ctx, testRepo, "update-metadata-2", sha))
	err = store.CreateBranch(ctx, testRepo, "update-metadata-2", sha)
	assert.True(t, errors.Is(err, status.ErrExists), "existing ref: %v", err)

	exists, err := store.BranchExists(ctx, testRepo, "update-metadata-2")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.BranchExists(ctx, testRepo, "update-metadata-3")
	require.NoError(t, err)
	assert.False(t, exists)

	server.CreateBranch(testRepo.String(), "update-metadata-1")
	branches, err := store.ListBranches(ctx, testRepo, "update-metadata-")
	require.NoError(t, err)
	assert.Equal(t, []string{"update-metadata-1", "update-metadata-2"}, branches)

	require.NoError(t, store.DeleteBranch(ctx, testRepo, "update-metadata-1"))
	err = store.DeleteBranch(ctx, testRepo, "update-metadata-1")
	assert.True(t, errors.Is(err, status.ErrNotFound), "deleting a missing ref: %v", err)
	assert.Equal(t, []string{"main", "update-metadata-2"}, server.Branches(testRepo.String()))
}

func TestPullRequests(t *testing.T) {
	store, server := setupStore(t)
	ctx := context.Background()
	server.CreateBranch(testRepo.String(), "update-metadata-1")

	req := storage.PullRequest{
		Title:  "Update metadata",
		Body:   "Automated update",
		Head:   "update-metadata-1",
		Base:   "main",
		Labels: []string{"automated"},
	}
	res, err := store.CreatePullRequest(ctx, testRepo, req)
	require.NoError(t, err)
	assert.False(t, res.Created, "no commit ahead")
	assert.Zero(t, server.Requests(http.MethodPost, "/repos/PrefectHQ/prefect-collection-registry/pulls"))

	server.SetFile(testRepo.String(), "update-metadata-1", "views/aggregate-flow-metadata.json", []byte(`{}`))
	res, err = store.CreatePullRequest(ctx, testRepo, req)
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, 1, res.Number)
	assert.Contains(t, res.URL, "/pull/1")

	pulls := server.PullRequests(testRepo.String())
	require.Len(t, pulls, 1)
	assert.Equal(t, []string{"automated"}, pulls[0].Labels)

	_, err = store.CreatePullRequest(ctx, testRepo, req)
	assert.True(t, errors.Is(err, status.ErrExists), "duplicate pull request: %v", err)

	open, err := store.ListPullRequests(ctx, testRepo, storage.StateOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "update-metadata-1", open[0].Head)
	assert.Equal(t, "main", open[0].Base)

	require.NoError(t, store.ClosePullRequest(ctx, testRepo, 1))
	open, err = store.ListPullRequests(ctx, testRepo, "")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestErrorMapping(t *testing.T) {
	store, server := setupStore(t)
	ctx := context.Background()
	const prefix = "/repos/PrefectHQ/prefect-collection-registry/contents"

	for _, tc := range []struct {
		code     int
		sentinel error
	}{
		{code: http.StatusUnauthorized, sentinel: status.ErrUnauthorized},
		{code: http.StatusForbidden, sentinel: status.ErrForbidden},
		{code: http.StatusInternalServerError, sentinel: status.ErrTransient},
		{code: http.StatusBadGateway, sentinel: status.ErrTransient},
		{code: http.StatusTooManyRequests, sentinel: status.ErrTransient},
		{code: http.StatusBadRequest, sentinel: status.ErrStorageAPI},
	} {
		server.FailNext(http.MethodGet, prefix, tc.code, 1)
		_, err := store.GetFile(ctx, testRepo, "views/aggregate-block-metadata.json", "main")
		require.Error(t, err)
		assert.Truef(t, errors.Is(err, tc.sentinel), "status %d mapped to %v", tc.code, err)
	}
}

func TestCallTimeout(t *testing.T) {
	server := githubtest.NewServer(t)
	store, err := New(BaseURL(server.APIURL()), CallTimeout(time.Nanosecond))
	require.NoError(t, err)

	_, err = store.GetFile(context.Background(), testRepo, "views/aggregate-block-metadata.json", "main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrTransient), "timeout is transient: %v", err)
}
