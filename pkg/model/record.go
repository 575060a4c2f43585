package model

import (
	"bytes"
	"encoding/json"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// Raw is an undecoded JSON value. Nested key order is preserved as written.
type Raw = json.RawMessage

// Record maps an item slug to its descriptor, for one collection and one variety
type Record map[string]Raw

// Slugs returns the sorted item slugs of the record
func (r Record) Slugs() []string {
	return sortedKeys(r)
}

// View maps a collection name to its wrapped record, for one variety
type View map[string]Raw

// Collections returns the sorted collection names present in the view
func (v View) Collections() []string {
	return sortedKeys(v)
}

// Snapshot is the content of a per-release snapshot: the collection name maps to its wrapped record
type Snapshot map[string]Raw

func sortedKeys[M ~map[string]Raw](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// documents are written with sorted map keys and without HTML escaping
var jsonAPI = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// MarshalCompact serializes a value to compact JSON, with sorted map keys
func MarshalCompact(v interface{}) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

// MarshalDocument serializes a value as a registry document: sorted keys, 2-space indentation.
//
// Documents produced from the same logical content are byte-identical, which is what
// allows unchanged aggregate views to be detected without a remote write.
func MarshalDocument(v interface{}) ([]byte, error) {
	compact, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a JSON document
func Unmarshal(data []byte, v interface{}) error {
	return jsonAPI.Unmarshal(data, v)
}

// DecodeView decodes an aggregate view. An empty document decodes as an empty view.
func DecodeView(data []byte) (View, error) {
	view := make(View)
	if len(bytes.TrimSpace(data)) == 0 {
		return view, nil
	}
	if err := Unmarshal(data, &view); err != nil {
		return nil, err
	}
	if view == nil {
		view = make(View)
	}
	return view, nil
}

// RecordFrom builds a record from typed descriptors keyed by slug
func RecordFrom[T any](items map[string]T) (Record, error) {
	record := make(Record, len(items))
	for slug, item := range items {
		raw, err := MarshalCompact(item)
		if err != nil {
			return nil, err
		}
		record[slug] = raw
	}
	return record, nil
}
