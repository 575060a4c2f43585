package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/blang/semver"
)

// CoreCollection is the name of the orchestrator's own package, which is always part of the registry
const CoreCollection = "prefect"

var isCollectionNameRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Collection identifies one release of an installable integration package
type Collection struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

func (c Collection) String() string {
	if c.Version == "" {
		return c.Name
	}
	return c.Name + "@" + c.Version
}

// ValidateCollectionName checks that a collection name is dash-separated, lower-case
func ValidateCollectionName(name string) error {
	if !isCollectionNameRe.MatchString(name) {
		return fmt.Errorf("invalid collection name %q: expect lower-case words separated by dashes", name)
	}
	return nil
}

// NormalizeVersion ensures a version tag carries a leading "v"
func NormalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	if version == "" || strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}

// CompareVersions orders two version tags.
//
// Tags are compared as semantic versions whenever both parse, and as plain strings otherwise.
func CompareVersions(a, b string) int {
	va, errA := semver.ParseTolerant(a)
	vb, errB := semver.ParseTolerant(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}

// LatestVersion returns the highest of some version tags, or "" when none is given
func LatestVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	sorted := append([]string(nil), versions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareVersions(sorted[i], sorted[j]) < 0
	})
	return sorted[len(sorted)-1]
}
