package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDocument(t *testing.T) {
	view := View{
		"zeta":  Raw(`{"b":1,"a":2}`),
		"alpha": Raw(`{"url":"https://x.io/?a=1&b=<2>"}`),
	}
	doc, err := MarshalDocument(view)
	require.NoError(t, err)

	const expected = `{
  "alpha": {
    "url": "https://x.io/?a=1&b=<2>"
  },
  "zeta": {
    "b": 1,
    "a": 2
  }
}`
	assert.Equal(t, expected, string(doc), "keys of the view are sorted, nested raw values keep their order, html is not escaped")

	again, err := MarshalDocument(view)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestMarshalDocumentInvalidRaw(t *testing.T) {
	_, err := MarshalDocument(View{"broken": Raw(`{"a":`)})
	require.Error(t, err)
}

func TestDecodeView(t *testing.T) {
	view, err := DecodeView(nil)
	require.NoError(t, err)
	assert.Empty(t, view)

	view, err = DecodeView([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, view)

	view, err = DecodeView([]byte(`{"b":{},"a":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, view.Collections())

	_, err = DecodeView([]byte(`[]`))
	require.Error(t, err)
}

func TestRecordFrom(t *testing.T) {
	type item struct {
		Name string `json:"name"`
	}
	record, err := RecordFrom(map[string]item{"b": {Name: "B"}, "a": {Name: "A"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, record.Slugs())
	assert.JSONEq(t, `{"name":"A"}`, string(record["a"]))
}
