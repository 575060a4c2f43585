package model

import (
	"fmt"
	"strings"
)

// Variety is the kind of metadata published for a collection
type Variety string

const (
	// VarietyBlock describes configuration object types
	VarietyBlock Variety = "block"

	// VarietyFlow describes workflow entry points
	VarietyFlow Variety = "flow"

	// VarietyWorker describes execution backends
	VarietyWorker Variety = "worker"

	// blockTypesKey nests block records in snapshots and views.
	blockTypesKey = "block_types"
)

// Varieties lists all supported metadata varieties, in the order they are published
func Varieties() []Variety {
	return []Variety{VarietyBlock, VarietyFlow, VarietyWorker}
}

// ParseVariety parses a variety name, accepting the plural form
func ParseVariety(name string) (Variety, error) {
	v := Variety(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "s"))
	if !v.Valid() {
		return "", fmt.Errorf("unknown metadata variety %q: expected one of block, flow, worker", name)
	}
	return v, nil
}

// Valid tells if this is a known variety
func (v Variety) Valid() bool {
	switch v {
	case VarietyBlock, VarietyFlow, VarietyWorker:
		return true
	default:
		return false
	}
}

func (v Variety) String() string {
	return string(v)
}

// Plural form of the variety, as used in paths
func (v Variety) Plural() string {
	return string(v) + "s"
}

// ViewPath is the path to the aggregate view of this variety
func (v Variety) ViewPath() string {
	return GetPathToView(v)
}

// SnapshotPath is the path to the snapshot of a collection's release for this variety
func (v Variety) SnapshotPath(collection, version string) string {
	return GetPathToSnapshot(collection, v, version)
}

// Wrap a record into the shape stored in snapshots and views.
//
// Block records are nested under a "block_types" key. Flow and worker records are stored as is.
func (v Variety) Wrap(record Record) (Raw, error) {
	if record == nil {
		record = Record{}
	}
	if v == VarietyBlock {
		return MarshalCompact(map[string]Record{blockTypesKey: record})
	}
	return MarshalCompact(record)
}

// Unwrap the record from its stored shape. It is the inverse of Wrap.
func (v Variety) Unwrap(raw Raw) (Record, error) {
	if v == VarietyBlock {
		var wrapper map[string]Raw
		if err := Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("decoding block wrapper: %w", err)
		}
		inner, ok := wrapper[blockTypesKey]
		if !ok {
			return nil, fmt.Errorf("missing %q key in block metadata", blockTypesKey)
		}
		raw = inner
	}
	var record Record
	if err := Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decoding %s metadata: %w", v, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%s metadata must be a JSON object", v)
	}
	return record, nil
}
