// Copyright © 2018 One Concern

package storage

import (
	"context"
	"fmt"
	"strings"
)

// Repository hosted on the remote
type Repository struct {
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepository parses an "owner/name" repository reference
func ParseRepository(ref string) (Repository, error) {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repository{}, fmt.Errorf("invalid repository %q: expect owner/name", ref)
	}
	return Repository{Owner: parts[0], Name: parts[1]}, nil
}

// File content at some ref, with its version token
type File struct {
	Path    string
	Ref     string
	Content []byte

	// SHA is the version token of the content, to be supplied back when updating the file
	SHA string
}

// PutRequest describes a file creation or update.
//
// When SHA is empty, the file is created and the request fails if it exists already.
// Otherwise, the file is updated only if its current SHA matches.
type PutRequest struct {
	Path    string
	Branch  string
	Message string
	Content []byte
	SHA     string
}

// Commit resulting from a file write
type Commit struct {
	Path      string
	SHA       string
	CommitSHA string
}

// Entry of a directory listing
type Entry struct {
	Name string
	Path string
	Type string
	SHA  string
}

// Entry types
const (
	EntryFile = "file"
	EntryDir  = "dir"
)

// IsFile tells if the entry is a regular file
func (e Entry) IsFile() bool {
	return e.Type == EntryFile
}

// PullRequest to open
type PullRequest struct {
	Title  string
	Body   string
	Head   string
	Base   string
	Labels []string
}

// PullRequestResult of CreatePullRequest
type PullRequestResult struct {
	// Created is false when head has no commit ahead of base, and no pull request is opened
	Created bool   `json:"created" yaml:"created"`
	Number  int    `json:"number,omitempty" yaml:"number,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
}

// PullRequestInfo describes an existing pull request
type PullRequestInfo struct {
	Number int
	Title  string
	Head   string
	Base   string
	State  string
	URL    string
}

// Pull request states
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateAll    = "all"
)

// Store knows how to read and write files in repositories.
//
// Errors are sentinels declared by the storage/status package.
type Store interface {
	String() string

	// GetFile returns the content of a file at some ref. It fails with ErrNotFound when missing.
	GetFile(ctx context.Context, repo Repository, path, ref string) (File, error)

	// PutFile creates or updates a file. It fails with ErrConflict when the supplied SHA is stale,
	// and with ErrExists when no SHA is supplied and the file exists.
	PutFile(ctx context.Context, repo Repository, req PutRequest) (Commit, error)

	// List the entries of a directory at some ref. It fails with ErrNotFound when missing.
	List(ctx context.Context, repo Repository, dir, ref string) ([]Entry, error)
}

// Refs knows how to manage branches
type Refs interface {
	CommitSHA(ctx context.Context, repo Repository, ref string) (string, error)
	CreateBranch(ctx context.Context, repo Repository, name, fromSHA string) error
	BranchExists(ctx context.Context, repo Repository, name string) (bool, error)
	ListBranches(ctx context.Context, repo Repository, prefix string) ([]string, error)
	DeleteBranch(ctx context.Context, repo Repository, name string) error
}

// Releases resolves the latest release tag of a repository
type Releases interface {
	LatestRelease(ctx context.Context, repo Repository) (string, error)
}

// PullRequests knows how to open, list and close pull requests
type PullRequests interface {
	CreatePullRequest(ctx context.Context, repo Repository, req PullRequest) (PullRequestResult, error)
	ListPullRequests(ctx context.Context, repo Repository, state string) ([]PullRequestInfo, error)
	ClosePullRequest(ctx context.Context, repo Repository, number int) error
}

// Remote exposes all capabilities of a remote content API
type Remote interface {
	Store
	Refs
	Releases
	PullRequests
}
