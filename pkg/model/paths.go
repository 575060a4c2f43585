package model

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	collectionsDir = "collections"
	viewsDir       = "views"

	viewFilePrefix = "aggregate-"
	viewFileSuffix = "-metadata.json"
	snapshotSuffix = ".json"

	// DemoFlowView is a sample view kept in the registry, never validated
	DemoFlowView = "demo-flow"
)

var isViewFileRe *regexp.Regexp

func init() {
	isViewFileRe = regexp.MustCompile(`^` + viewFilePrefix + `(.+)` + regexp.QuoteMeta(viewFileSuffix) + `$`)
}

// GetPathToView yields the path to the aggregate view of a variety
func GetPathToView(variety Variety) string {
	return fmt.Sprint(viewsDir, "/", viewFilePrefix, variety, viewFileSuffix)
}

// GetPathToSnapshot yields the path to a release snapshot
func GetPathToSnapshot(collection string, variety Variety, version string) string {
	return fmt.Sprint(collectionsDir, "/", collection, "/", variety.Plural(), "/", version, snapshotSuffix)
}

// GetPathToSnapshots yields the directory holding all release snapshots of a collection for a variety
func GetPathToSnapshots(collection string, variety Variety) string {
	return fmt.Sprint(collectionsDir, "/", collection, "/", variety.Plural())
}

// SnapshotPathComponents defines the parts of a snapshot path
type SnapshotPathComponents struct {
	Collection string
	Variety    Variety
	Version    string
}

// GetSnapshotPathComponents parses a path such as collections/{collection}/{variety}s/{version}.json
func GetSnapshotPathComponents(snapshotPath string) (SnapshotPathComponents, error) {
	const parts = 4
	cs := strings.Split(path.Clean(snapshotPath), "/")
	if len(cs) != parts || cs[0] != collectionsDir {
		return SnapshotPathComponents{},
			fmt.Errorf("path is invalid: expect path to snapshot to have %d parts under %q: %s", parts, collectionsDir, snapshotPath)
	}
	if !strings.HasSuffix(cs[3], snapshotSuffix) {
		return SnapshotPathComponents{},
			fmt.Errorf("path is invalid: snapshot should be a %s file: %s", snapshotSuffix, snapshotPath)
	}
	variety, err := ParseVariety(cs[2])
	if err != nil {
		return SnapshotPathComponents{}, fmt.Errorf("path is invalid: %v: %s", err, snapshotPath)
	}
	return SnapshotPathComponents{
		Collection: cs[1],
		Variety:    variety,
		Version:    strings.TrimSuffix(cs[3], snapshotSuffix),
	}, nil
}

// ViewNameFromPath extracts the variety part of a view file name, e.g. "block" from
// views/aggregate-block-metadata.json. The name is not checked against known varieties.
func ViewNameFromPath(viewPath string) (string, bool) {
	m := isViewFileRe.FindStringSubmatch(path.Base(viewPath))
	if m == nil {
		return "", false
	}
	return m[1], true
}
