package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSnapshotPathComponents(t *testing.T) {
	for _, tc := range []struct {
		name       string
		path       string
		wantsError bool
		expected   SnapshotPathComponents
	}{
		{
			name:     "block snapshot",
			path:     "collections/prefect-aws/blocks/v0.4.2.json",
			expected: SnapshotPathComponents{Collection: "prefect-aws", Variety: VarietyBlock, Version: "v0.4.2"},
		},
		{
			name:     "worker snapshot",
			path:     "collections/prefect/workers/v3.0.0.json",
			expected: SnapshotPathComponents{Collection: "prefect", Variety: VarietyWorker, Version: "v3.0.0"},
		},
		{
			name:       "not a snapshot",
			path:       "views/aggregate-block-metadata.json",
			wantsError: true,
		},
		{
			name:       "unknown variety",
			path:       "collections/prefect/deployments/v1.json",
			wantsError: true,
		},
		{
			name:       "not json",
			path:       "collections/prefect/flows/v1.yaml",
			wantsError: true,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			actual, err := GetSnapshotPathComponents(tc.path)
			if tc.wantsError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestViewNameFromPath(t *testing.T) {
	name, ok := ViewNameFromPath("views/aggregate-worker-metadata.json")
	require.True(t, ok)
	assert.Equal(t, "worker", name)

	name, ok = ViewNameFromPath("/tmp/registry/views/aggregate-demo-flow-metadata.json")
	require.True(t, ok)
	assert.Equal(t, DemoFlowView, name)

	_, ok = ViewNameFromPath("views/README.md")
	assert.False(t, ok)
}
