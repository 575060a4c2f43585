package core

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/schema"
)

// ValidateViews checks every aggregate view found in dir against the schema of its variety.
//
// The variety is taken from the file name. The demo flow view is skipped.
// It returns the views checked, and all validation failures.
func ValidateViews(fs afero.Fs, dir string, validator *schema.Validator) ([]string, error) {
	if validator == nil {
		v, err := schema.Default()
		if err != nil {
			return nil, err
		}
		validator = v
	}
	files, err := afero.Glob(fs, path.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var (
		checked []string
		errs    error
	)
	for _, file := range files {
		if strings.Contains(path.Base(file), model.DemoFlowView) {
			continue
		}
		name, ok := model.ViewNameFromPath(file)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: not an aggregate view", file))
			continue
		}
		variety, err := model.ParseVariety(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		data, err := afero.ReadFile(fs, file)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		checked = append(checked, file)
		if err := validator.ValidateViewDocument(variety, data); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", file, err))
		}
	}
	return checked, errs
}

// CapabilityMatch locates a block exposing some capability
type CapabilityMatch struct {
	Collection string `json:"collection" yaml:"collection"`
	Version    string `json:"version" yaml:"version"`
	Slug       string `json:"slug" yaml:"slug"`
}

func (m CapabilityMatch) String() string {
	return m.Collection + ":" + m.Version + ":" + m.Slug
}

type blockCapabilities struct {
	BlockSchema *struct {
		Capabilities []string `json:"capabilities"`
	} `json:"block_schema"`
}

// FindByCapability scans the block snapshots under root for blocks exposing any of the capabilities
func FindByCapability(fs afero.Fs, root string, capabilities []string) ([]CapabilityMatch, error) {
	desired := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		desired[c] = true
	}

	root = path.Clean(root)
	pattern := path.Join(root, model.GetPathToSnapshots("*", model.VarietyBlock), "*.json")
	files, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var matches []CapabilityMatch
	for _, file := range files {
		rel := file
		if root != "." {
			rel = strings.TrimPrefix(strings.TrimPrefix(file, root), "/")
		}
		parts, err := model.GetSnapshotPathComponents(rel)
		if err != nil {
			return nil, err
		}
		data, err := afero.ReadFile(fs, file)
		if err != nil {
			return nil, err
		}
		blocks, err := snapshotBlocks(parts.Collection, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for _, slug := range blocks.Slugs() {
			var block blockCapabilities
			if err := model.Unmarshal(blocks[slug], &block); err != nil || block.BlockSchema == nil {
				continue
			}
			for _, c := range block.BlockSchema.Capabilities {
				if desired[c] {
					matches = append(matches, CapabilityMatch{Collection: parts.Collection, Version: parts.Version, Slug: slug})
					break
				}
			}
		}
	}
	return matches, nil
}

// snapshotBlocks extracts the block record of a snapshot. Snapshots holding
// the block wrapper at the top level are supported as well.
func snapshotBlocks(collection string, data []byte) (model.Record, error) {
	var snapshot model.Snapshot
	if err := model.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	if wrapped, ok := snapshot[collection]; ok {
		return model.VarietyBlock.Unwrap(wrapped)
	}
	if record, err := model.VarietyBlock.Unwrap(data); err == nil {
		return record, nil
	}
	return model.Record{}, nil
}
