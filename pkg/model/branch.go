package model

import (
	"sort"
	"strings"

	"github.com/segmentio/ksuid"
)

const (
	// MetadataBranch is the default name of the branch receiving metadata updates
	MetadataBranch = "update-metadata"

	// MetadataBranchPrefix prefixes all generated metadata update branches
	MetadataBranchPrefix = MetadataBranch + "-"

	// TrunkBranch may never receive metadata updates directly
	TrunkBranch = "main"
)

// NewMetadataBranchName yields a unique, time-sortable metadata branch name
func NewMetadataBranchName() string {
	return MetadataBranchPrefix + ksuid.New().String()
}

// IsMetadataBranch tells if a branch was generated by NewMetadataBranchName
// or follows the same naming pattern
func IsMetadataBranch(name string) bool {
	return strings.HasPrefix(name, MetadataBranchPrefix) && len(name) > len(MetadataBranchPrefix)
}

// LatestMetadataBranch picks the metadata branch with the greatest suffix.
//
// Branches not following the metadata naming pattern are ignored.
// The remaining metadata branches are returned as stale.
func LatestMetadataBranch(branches []string) (latest string, stale []string) {
	candidates := make([]string, 0, len(branches))
	for _, b := range branches {
		if IsMetadataBranch(b) {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Strings(candidates)
	return candidates[len(candidates)-1], candidates[:len(candidates)-1]
}
