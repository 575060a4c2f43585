package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/model"
)

const (
	validBlock = `{
  "name": "S3 Bucket",
  "slug": "s3-bucket",
  "logo_url": "https://images.ctfassets.net/aws.png",
  "documentation_url": null,
  "description": "Block used to store data using AWS S3.",
  "code_example": "from prefect_aws import S3Bucket",
  "block_schema": {
    "checksum": "sha256:0123",
    "version": "0.4.2",
    "capabilities": ["read-path", "write-path"],
    "fields": {"title": "S3Bucket", "type": "object"}
  }
}`

	validFlow = `{
  "name": "hello",
  "slug": "hello",
  "parameters": {"type": "object"},
  "description": {"summary": "Say hello."},
  "documentation_url": "https://prefecthq.github.io/demo-collection/flows/#demo_collection.flows.hello",
  "logo_url": "https://images.ctfassets.net/demo.png",
  "install_command": "pip install demo-collection",
  "path_containing_flow": "demo_collection/flows.py",
  "entrypoint": "demo_collection/flows.py:hello",
  "repo_url": "https://github.com/PrefectHQ/demo-collection"
}`

	validWorker = `{
  "type": "process",
  "description": "Runs flows in subprocesses.",
  "install_command": "pip install prefect",
  "default_base_job_configuration": {"job_configuration": {}},
  "is_beta": false
}`
)

func testValidator(t *testing.T) *Validator {
	v, err := Default()
	require.NoError(t, err)
	return v
}

func TestSources(t *testing.T) {
	for _, variety := range model.Varieties() {
		data, err := Source(variety)
		require.NoError(t, err)
		assert.Contains(t, string(data), "2020-12")
	}
	_, err := Source(model.Variety("deployment"))
	require.Error(t, err)
}

func TestValidateItem(t *testing.T) {
	v := testValidator(t)

	require.NoError(t, v.ValidateItem(model.VarietyBlock, model.Raw(validBlock)))
	require.NoError(t, v.ValidateItem(model.VarietyFlow, model.Raw(validFlow)))
	require.NoError(t, v.ValidateItem(model.VarietyWorker, model.Raw(validWorker)))

	for _, tc := range []struct {
		name    string
		variety model.Variety
		item    string
	}{
		{name: "flow missing entrypoint", variety: model.VarietyFlow, item: `{"name":"hello","slug":"hello"}`},
		{name: "worker with non boolean is_beta", variety: model.VarietyWorker, item: `{"type":"process","description":"","install_command":"pip install prefect","default_base_job_configuration":{},"is_beta":"no"}`},
		{name: "block with empty logo", variety: model.VarietyBlock, item: `{"name":"x","slug":"x","logo_url":"","description":"","code_example":"","block_schema":{"checksum":"","version":"","capabilities":[],"fields":{}}}`},
		{name: "block schema without capabilities", variety: model.VarietyBlock, item: `{"name":"x","slug":"x","logo_url":"https://x.io/x.png","description":"","code_example":"","block_schema":{"checksum":"","version":"","fields":{}}}`},
		{name: "not an object", variety: model.VarietyFlow, item: `[]`},
		{name: "unknown variety", variety: model.Variety("deployment"), item: `{}`},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateItem(tc.variety, model.Raw(tc.item))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestValidateView(t *testing.T) {
	v := testValidator(t)

	blockView := model.View{
		"prefect-aws": model.Raw(`{"block_types":{"s3-bucket":` + validBlock + `}}`),
	}
	require.NoError(t, v.ValidateView(model.VarietyBlock, blockView))

	t.Run("block entry without wrapper", func(t *testing.T) {
		err := v.ValidateView(model.VarietyBlock, model.View{"prefect-aws": model.Raw(`{"s3-bucket":` + validBlock + `}`)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Contains(t, err.Error(), "prefect-aws")
	})

	t.Run("one invalid item fails the view", func(t *testing.T) {
		view := model.View{
			"demo-collection": model.Raw(`{"hello":` + validFlow + `}`),
			"prefect-dbt":     model.Raw(`{"broken":{"name":"broken"}}`),
		}
		err := v.ValidateView(model.VarietyFlow, view)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prefect-dbt")
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("document", func(t *testing.T) {
		require.NoError(t, v.ValidateViewDocument(model.VarietyWorker, []byte(`{"prefect":{"process":`+validWorker+`}}`)))
		require.NoError(t, v.ValidateViewDocument(model.VarietyWorker, []byte(`{}`)))
		require.Error(t, v.ValidateViewDocument(model.VarietyWorker, []byte(`{"prefect":`)))
	})
}
