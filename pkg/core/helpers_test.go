package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/storage"
	"github.com/oneconcern/collection-registry/pkg/storage/github"
	"github.com/oneconcern/collection-registry/pkg/storage/githubtest"
	"github.com/oneconcern/collection-registry/pkg/storage/localfs"
)

const (
	testBranch   = "update-metadata"
	registryRoot = "PrefectHQ/prefect-collection-registry"
)

var registry = storage.Repository{Owner: "PrefectHQ", Name: "prefect-collection-registry"}

func noDelay() RetryPolicy {
	return RetryPolicy{
		MaxConflicts: DefaultMaxConflicts,
		MaxTransient: DefaultMaxTransient,
		Backoff:      func(int) time.Duration { return 0 },
		Sleep:        func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		CallTimeout:  5 * time.Second,
	}
}

func flowItem(collection, function string) model.Raw {
	return model.Raw(fmt.Sprintf(`{"description":{"summary":"Runs %[2]s."},`+
		`"documentation_url":"https://prefecthq.github.io/%[1]s/flows/#%[2]s",`+
		`"entrypoint":"flows.py:%[2]s","install_command":"pip install %[1]s",`+
		`"logo_url":"https://images.example.com/%[1]s.png","name":"%[2]s","parameters":{},`+
		`"path_containing_flow":"flows.py","repo_url":"https://github.com/PrefectHQ/%[1]s","slug":"%[2]s"}`,
		collection, function))
}

func flowRecord(collection string) model.Record {
	return model.Record{"demo_flow": flowItem(collection, "demo_flow")}
}

func blockRecord() model.Record {
	return model.Record{"demo-credentials": model.Raw(`{"block_schema":{"capabilities":["read-path"],` +
		`"checksum":"sha256:44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a","fields":{},"version":"1.0.0"},` +
		`"code_example":"","description":"Demo credentials.","documentation_url":null,` +
		`"logo_url":"https://images.example.com/demo.png","name":"Demo Credentials","slug":"demo-credentials"}`)}
}

// setupLocal builds a local remote with the registry's main and update branches
func setupLocal(t *testing.T, releases map[string]string) (storage.Remote, afero.Fs) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(registryRoot+"/main/views", 0o700))
	require.NoError(t, fs.MkdirAll(registryRoot+"/"+testBranch+"/views", 0o700))

	remote, err := localfs.New(fs, localfs.WithReleases(storage.NewStaticReleases(releases)))
	require.NoError(t, err)
	return remote, fs
}

func writeLocal(t *testing.T, fs afero.Fs, branch, filePath, content string) {
	require.NoError(t, afero.WriteFile(fs, registryRoot+"/"+branch+"/"+filePath, []byte(content), 0o600))
}

func readLocal(t *testing.T, fs afero.Fs, branch, filePath string) string {
	content, err := afero.ReadFile(fs, registryRoot+"/"+branch+"/"+filePath)
	require.NoError(t, err)
	return string(content)
}

// setupGithub builds a remote backed by a fake GitHub API
func setupGithub(t *testing.T) (storage.Remote, *githubtest.Server) {
	server := githubtest.NewServer(t)
	remote, err := github.New(
		github.BaseURL(server.APIURL()),
		github.Token("ghp_test"),
		github.RequestsPerSecond(0),
	)
	require.NoError(t, err)
	return remote, server
}
