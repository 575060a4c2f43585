package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/schema"
	storagestatus "github.com/oneconcern/collection-registry/pkg/storage/status"
)

var flowView = model.VarietyFlow.ViewPath()

func TestSubmitScenario(t *testing.T) {
	remote, fs := setupLocal(t, map[string]string{"demo-collection": "1.0.0"})
	existing, err := model.MarshalDocument(model.View{"zeta-collection": model.Raw(`{"zeta_flow":` + string(flowItem("zeta-collection", "zeta_flow")) + `}`)})
	require.NoError(t, err)
	writeLocal(t, fs, testBranch, flowView, string(existing))

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)

	metadata := flowRecord("demo-collection")
	require.NoError(t, submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   metadata,
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	}))

	snapshot := readLocal(t, fs, testBranch, "collections/demo-collection/flows/v1.0.0.json")
	assert.JSONEq(t, `{"demo-collection":{"demo_flow":`+string(flowItem("demo-collection", "demo_flow"))+`}}`, snapshot)

	view := readLocal(t, fs, testBranch, flowView)
	decoded, err := model.DecodeView([]byte(view))
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-collection", "zeta-collection"}, decoded.Collections())
	assert.Less(t, strings.Index(view, `"demo-collection"`), strings.Index(view, `"zeta-collection"`), "collections are sorted")
	assert.True(t, strings.HasPrefix(view, "{\n  \"demo-collection\": {"), "views are indented with 2 spaces")

	record, err := model.VarietyFlow.Unwrap(decoded["demo-collection"])
	require.NoError(t, err)
	assert.JSONEq(t, string(metadata["demo_flow"]), string(record["demo_flow"]))

	_, err = fs.Stat(registryRoot + "/main/" + flowView)
	assert.Error(t, err, "the main branch is never written to")
}

func TestSubmitBlocksAreWrapped(t *testing.T) {
	remote, fs := setupLocal(t, map[string]string{"demo-collection": "v1.0.0"})
	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)

	require.NoError(t, submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   blockRecord(),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyBlock,
	}))

	snapshot := readLocal(t, fs, testBranch, "collections/demo-collection/blocks/v1.0.0.json")
	assert.Contains(t, snapshot, `"block_types"`)

	view, err := model.DecodeView([]byte(readLocal(t, fs, testBranch, model.VarietyBlock.ViewPath())))
	require.NoError(t, err)
	record, err := model.VarietyBlock.Unwrap(view["demo-collection"])
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-credentials"}, record.Slugs())
}

func TestSubmitTwiceIsNoop(t *testing.T) {
	remote, server := setupGithub(t)
	server.SetRelease("PrefectHQ/demo-collection", "v1.0.0")
	server.CreateBranch(registry.String(), testBranch)

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	req := SubmitRequest{
		Metadata:   flowRecord("demo-collection"),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	}
	ctx := context.Background()

	require.NoError(t, submitter.Submit(ctx, req))
	commits := server.Commits(registry.String(), testBranch)
	view, ok := server.File(registry.String(), testBranch, flowView)
	require.True(t, ok)

	require.NoError(t, submitter.Submit(ctx, req))
	assert.Equal(t, commits, server.Commits(registry.String(), testBranch), "no commit when nothing changed")
	again, ok := server.File(registry.String(), testBranch, flowView)
	require.True(t, ok)
	assert.Equal(t, view, again)
	assert.Equal(t, []string{
		"collections/demo-collection/flows/v1.0.0.json",
		flowView,
	}, server.Files(registry.String(), testBranch))
}

func TestSubmitEmptyMetadata(t *testing.T) {
	remote, fs := setupLocal(t, map[string]string{"demo-collection": "2.0.0"})
	writeLocal(t, fs, testBranch, model.VarietyWorker.ViewPath(), `{}`)

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	require.NoError(t, submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   model.Record{},
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyWorker,
	}))

	assert.JSONEq(t, `{"demo-collection":{}}`, readLocal(t, fs, testBranch, "collections/demo-collection/workers/v2.0.0.json"))
	assert.Equal(t, `{}`, readLocal(t, fs, testBranch, model.VarietyWorker.ViewPath()), "the aggregate view is untouched")
}

func TestSubmitExistingSnapshot(t *testing.T) {
	remote, fs := setupLocal(t, map[string]string{"demo-collection": "1.0.0"})
	const recorded = `{"demo-collection": {}}`
	require.NoError(t, fs.MkdirAll(registryRoot+"/"+testBranch+"/collections/demo-collection/flows", 0o700))
	writeLocal(t, fs, testBranch, "collections/demo-collection/flows/v1.0.0.json", recorded)

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	require.NoError(t, submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   flowRecord("demo-collection"),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	}))

	assert.Equal(t, recorded, readLocal(t, fs, testBranch, "collections/demo-collection/flows/v1.0.0.json"), "snapshots are immutable")
	assert.Contains(t, readLocal(t, fs, testBranch, flowView), `"demo_flow"`, "the aggregate view is merged anyway")
}

func TestSubmitInvalidArguments(t *testing.T) {
	remote, server := setupGithub(t)
	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	ctx := context.Background()

	for _, req := range []SubmitRequest{
		{Collection: "demo-collection", Branch: "main", Variety: model.VarietyFlow, Metadata: flowRecord("demo-collection")},
		{Collection: "demo-collection", Branch: "", Variety: model.VarietyFlow},
		{Collection: "demo_collection", Branch: testBranch, Variety: model.VarietyFlow},
		{Collection: "demo-collection", Branch: testBranch, Variety: model.Variety("task")},
	} {
		err := submitter.Submit(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, status.ErrInvalidArgument), "%+v: %v", req, err)
	}

	err = submitter.Submit(ctx, SubmitRequest{
		Metadata:   model.Record{"broken": model.Raw(`{"name":"broken"}`)},
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrSchemaValidation))
	assert.True(t, errors.Is(err, schema.ErrValidation))

	assert.Zero(t, server.TotalRequests(), "invalid requests never reach the remote")
}

func TestSubmitRefusesTrunkWithOtherBase(t *testing.T) {
	remote, server := setupGithub(t)
	server.SetRelease("PrefectHQ/demo-collection", "v1.0.0")
	server.CreateBranch(registry.String(), "develop")

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()), BaseBranch("develop"))
	require.NoError(t, err)
	ctx := context.Background()

	for _, branch := range []string{model.TrunkBranch, "develop"} {
		err := submitter.Submit(ctx, SubmitRequest{
			Metadata:   flowRecord("demo-collection"),
			Collection: "demo-collection",
			Branch:     branch,
			Variety:    model.VarietyFlow,
		})
		require.Error(t, err, branch)
		assert.True(t, errors.Is(err, status.ErrInvalidArgument), "%s: %v", branch, err)
	}
	assert.Zero(t, server.TotalRequests())
	_, ok := server.File(registry.String(), model.TrunkBranch, model.GetPathToSnapshot("demo-collection", model.VarietyFlow, "v1.0.0"))
	assert.False(t, ok)
}

func TestSubmitInvalidMergedView(t *testing.T) {
	remote, server := setupGithub(t)
	server.SetRelease("PrefectHQ/demo-collection", "v1.0.0")
	server.CreateBranch(registry.String(), testBranch)
	server.SetFile(registry.String(), testBranch, flowView, []byte(`{"other-collection": {"broken": {"name": "broken"}}}`))

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	err = submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   flowRecord("demo-collection"),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrSchemaValidation), "%v", err)
	assert.False(t, errors.Is(err, status.ErrRetryExhausted))

	viewURL := "/repos/" + registryRoot + "/contents/" + flowView
	assert.Equal(t, 1, server.Requests(http.MethodGet, viewURL), "validation failures are not retried")
	assert.Zero(t, server.Requests(http.MethodPut, viewURL))

	_, ok := server.File(registry.String(), testBranch, model.GetPathToSnapshot("demo-collection", model.VarietyFlow, "v1.0.0"))
	assert.True(t, ok, "the snapshot is recorded before the merge")
}

func TestSubmitMergeAfterStaleSHA(t *testing.T) {
	remote, server := setupGithub(t)
	for _, c := range []string{"alpha-collection", "beta-collection"} {
		server.SetRelease("PrefectHQ/"+c, "v1.0.0")
	}
	server.CreateBranch(registry.String(), testBranch)

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	ctx := context.Background()

	// beta lands between alpha's read and alpha's write of the aggregate view
	var fired atomic.Bool
	var betaErr error
	server.OnWrite(func(_, _, filePath string) {
		if filePath != flowView || !fired.CompareAndSwap(false, true) {
			return
		}
		betaErr = submitter.Submit(ctx, SubmitRequest{
			Metadata:   flowRecord("beta-collection"),
			Collection: "beta-collection",
			Branch:     testBranch,
			Variety:    model.VarietyFlow,
		})
	})

	require.NoError(t, submitter.Submit(ctx, SubmitRequest{
		Metadata:   flowRecord("alpha-collection"),
		Collection: "alpha-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	}))
	require.NoError(t, betaErr)

	content, ok := server.File(registry.String(), testBranch, flowView)
	require.True(t, ok)
	view, err := model.DecodeView(content)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha-collection", "beta-collection"}, view.Collections())
	assert.Equal(t, 3, server.Requests(http.MethodPut, "/repos/"+registryRoot+"/contents/"+flowView),
		"alpha writes twice: once with a stale sha, once after merging again")
}

func TestSubmitConcurrentCollections(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	collections := []string{"alpha-collection", "beta-collection", "gamma-collection", "delta-collection"}
	releases := make(map[string]string, len(collections))
	for _, c := range collections {
		releases[c] = "1.0.0"
	}
	remote, fs := setupLocal(t, releases)
	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, len(collections))
	for i, c := range collections {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			errs[i] = submitter.Submit(context.Background(), SubmitRequest{
				Metadata:   flowRecord(c),
				Collection: c,
				Branch:     testBranch,
				Variety:    model.VarietyFlow,
			})
		}(i, c)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	view, err := model.DecodeView([]byte(readLocal(t, fs, testBranch, flowView)))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha-collection", "beta-collection", "delta-collection", "gamma-collection"}, view.Collections())
}

func TestSubmitTransientFailures(t *testing.T) {
	remote, server := setupGithub(t)
	server.SetRelease("PrefectHQ/demo-collection", "v1.0.0")
	server.CreateBranch(registry.String(), testBranch)
	server.FailNext(http.MethodGet, "/repos/"+registryRoot+"/contents/views", http.StatusBadGateway, 2)

	var slept int
	policy := noDelay()
	sleep := policy.Sleep
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return sleep(ctx, d)
	}

	submitter, err := NewSubmitter(remote, registry, Retry(policy))
	require.NoError(t, err)
	require.NoError(t, submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   flowRecord("demo-collection"),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	}))
	assert.Equal(t, 2, slept)
	assert.Equal(t, 3, server.Requests(http.MethodGet, "/repos/"+registryRoot+"/contents/views"))
}

func TestSubmitTransientExhausted(t *testing.T) {
	remote, server := setupGithub(t)
	server.SetRelease("PrefectHQ/demo-collection", "v1.0.0")
	server.CreateBranch(registry.String(), testBranch)
	server.FailNext(http.MethodPut, "/repos/"+registryRoot+"/contents/collections", http.StatusServiceUnavailable, 100)

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	err = submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   flowRecord("demo-collection"),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrSubmissionFailed), "%v", err)
	assert.True(t, errors.Is(err, storagestatus.ErrTransient))
	assert.Equal(t, DefaultMaxTransient+1, server.Requests(http.MethodPut, "/repos/"+registryRoot+"/contents/collections"))
	_, ok := server.File(registry.String(), testBranch, flowView)
	assert.False(t, ok, "the aggregate view is not merged without a snapshot")
}

func TestSubmitRetryExhausted(t *testing.T) {
	remote, server := setupGithub(t)
	server.SetRelease("PrefectHQ/demo-collection", "v1.0.0")
	server.CreateBranch(registry.String(), testBranch)

	// every write of the view races with another writer
	var n atomic.Int32
	server.OnWrite(func(repo, branch, filePath string) {
		if filePath != flowView {
			return
		}
		server.SetFile(repo, branch, filePath, []byte(fmt.Sprintf(`{"other-%d": {}}`, n.Add(1))))
	})

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	err = submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   flowRecord("demo-collection"),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrRetryExhausted), "%v", err)
	assert.Equal(t, DefaultMaxConflicts, server.Requests(http.MethodPut, "/repos/"+registryRoot+"/contents/"+flowView))
}

func TestSubmitUnknownRelease(t *testing.T) {
	remote, server := setupGithub(t)
	server.CreateBranch(registry.String(), testBranch)

	submitter, err := NewSubmitter(remote, registry, Retry(noDelay()))
	require.NoError(t, err)
	err = submitter.Submit(context.Background(), SubmitRequest{
		Metadata:   flowRecord("demo-collection"),
		Collection: "demo-collection",
		Branch:     testBranch,
		Variety:    model.VarietyFlow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storagestatus.ErrNotFound))
	assert.Zero(t, server.Requests(http.MethodPut, "/repos/"))
}
