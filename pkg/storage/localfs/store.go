// Copyright © 2018 One Concern

// Package localfs implements the storage interfaces on a local file system.
//
// Files are stored under {owner}/{repo}/{branch}/{path}. Branches are plain directories,
// pull requests are kept in memory.
package localfs

import (
	"context"
	"crypto/sha1" // #nosec: git object ids are SHA-1
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/storage"
	"github.com/oneconcern/collection-registry/pkg/storage/status"
)

const (
	// staging area for atomic writes, at the root of the file system
	nestedPutStageName = ".put-stage"

	dirPerm  = 0o700
	filePerm = 0o600
)

var _ storage.Remote = &localFS{}

// Option for the local store
type Option func(*localFS)

// WithReleases resolves latest releases with the provided resolver
func WithReleases(releases storage.Releases) Option {
	return func(l *localFS) {
		if releases != nil {
			l.releases = releases
		}
	}
}

// WithLogger logs pull requests opened or closed locally
func WithLogger(logger *zap.Logger) Option {
	return func(l *localFS) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a local file system backed remote.
//
// Writes are atomic: files are placed in a staging area, then renamed into place.
func New(fs afero.Fs, opts ...Option) (storage.Remote, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".registry", "remote"))
	}
	if err := fs.MkdirAll(nestedPutStageName, dirPerm); err != nil {
		return nil, fmt.Errorf("ensuring put staging directory for %q: %v", nestedPutStageName, err)
	}
	l := &localFS{
		fs:       fs,
		releases: storage.NewStaticReleases(nil),
		logger:   zap.NewNop(),
		commits:  make(map[string]string),
	}
	for _, apply := range opts {
		apply(l)
	}
	return l, nil
}

type localFS struct {
	fs       afero.Fs
	releases storage.Releases
	logger   *zap.Logger

	mu      sync.Mutex
	commits map[string]string // tree digest -> branch
	pulls   []storage.PullRequestInfo
	stages  int
}

// BlobSHA computes the git object id of some content
func BlobSHA(content []byte) string {
	h := sha1.New() // #nosec
	_, _ = fmt.Fprintf(h, "blob %d\x00", len(content))
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", status.ErrInvalidPath.WrapMessage("empty path")
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", status.ErrInvalidPath.WrapMessage("path escapes repository: %q", p)
	}
	return cleaned, nil
}

func validRef(ref string) error {
	if ref == "" || strings.ContainsAny(ref, `/\`) || ref == "." || ref == ".." {
		return status.ErrInvalidPath.WrapMessage("invalid ref: %q", ref)
	}
	return nil
}

func repoDir(repo storage.Repository) string {
	return path.Join(repo.Owner, repo.Name)
}

func refDir(repo storage.Repository, ref string) string {
	return path.Join(repoDir(repo), ref)
}

func (l *localFS) key(repo storage.Repository, ref, p string) (string, error) {
	if err := validRef(ref); err != nil {
		return "", err
	}
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return path.Join(refDir(repo, ref), cleaned), nil
}

func (l *localFS) isDir(key string) (bool, error) {
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir(), nil
}

func (l *localFS) GetFile(_ context.Context, repo storage.Repository, p, ref string) (storage.File, error) {
	key, err := l.key(repo, ref, p)
	if err != nil {
		return storage.File{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := afero.ReadFile(l.fs, key)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.File{}, status.ErrNotFound.WrapMessage("%s: %s@%s", repo, p, ref)
		}
		return storage.File{}, status.ErrStorageAPI.Wrap(err)
	}
	return storage.File{
		Path:    p,
		Ref:     ref,
		Content: content,
		SHA:     BlobSHA(content),
	}, nil
}

func (l *localFS) PutFile(_ context.Context, repo storage.Repository, req storage.PutRequest) (storage.Commit, error) {
	key, err := l.key(repo, req.Branch, req.Path)
	if err != nil {
		return storage.Commit{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	exists, err := l.isDir(refDir(repo, req.Branch))
	if err != nil {
		return storage.Commit{}, status.ErrStorageAPI.Wrap(err)
	}
	if !exists {
		return storage.Commit{}, status.ErrNotFound.WrapMessage("no branch %q in %s", req.Branch, repo)
	}

	current, err := afero.ReadFile(l.fs, key)
	switch {
	case err != nil && !os.IsNotExist(err):
		return storage.Commit{}, status.ErrStorageAPI.Wrap(err)
	case err != nil && req.SHA != "":
		return storage.Commit{}, status.ErrConflict.WrapMessage("%s does not exist, cannot update at sha %s", req.Path, req.SHA)
	case err == nil && req.SHA == "":
		return storage.Commit{}, status.ErrExists.WrapMessage("%s: %s@%s", repo, req.Path, req.Branch)
	case err == nil && BlobSHA(current) != req.SHA:
		return storage.Commit{}, status.ErrConflict.WrapMessage("%s is at %s, not %s", req.Path, BlobSHA(current), req.SHA)
	}

	if err := l.atomicPut(key, req.Content); err != nil {
		return storage.Commit{}, status.ErrStorageAPI.Wrap(err)
	}
	sha := BlobSHA(req.Content)
	return storage.Commit{
		Path:      req.Path,
		SHA:       sha,
		CommitSHA: BlobSHA([]byte(key + "@" + sha)),
	}, nil
}

// atomicPut writes content to a staging area, then renames it into place
func (l *localFS) atomicPut(key string, content []byte) error {
	l.stages++
	stageKey := path.Join(nestedPutStageName, strconv.Itoa(l.stages))
	if err := afero.WriteFile(l.fs, stageKey, content, filePerm); err != nil {
		return fmt.Errorf("staging %q: %v", key, err)
	}
	if dir := path.Dir(key); dir != "" {
		if err := l.fs.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("ensuring directories for %q: %v", key, err)
		}
	}
	return l.fs.Rename(stageKey, key)
}

func (l *localFS) List(_ context.Context, repo storage.Repository, dir, ref string) ([]storage.Entry, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	key := refDir(repo, ref)
	if dir = strings.Trim(dir, "/"); dir != "" && dir != "." {
		cleaned, err := cleanPath(dir)
		if err != nil {
			return nil, err
		}
		dir = cleaned
		key = path.Join(key, cleaned)
	} else {
		dir = ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	infos, err := afero.ReadDir(l.fs, key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotFound.WrapMessage("%s: %s@%s", repo, dir, ref)
		}
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	entries := make([]storage.Entry, 0, len(infos))
	for _, info := range infos {
		entry := storage.Entry{
			Name: info.Name(),
			Path: path.Join(dir, info.Name()),
			Type: storage.EntryFile,
		}
		if info.IsDir() {
			entry.Type = storage.EntryDir
		} else if content, err := afero.ReadFile(l.fs, path.Join(key, info.Name())); err == nil {
			entry.SHA = BlobSHA(content)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}

func (l *localFS) LatestRelease(ctx context.Context, repo storage.Repository) (string, error) {
	return l.releases.LatestRelease(ctx, repo)
}

// treeDigest summarizes the content of a branch, and stands for its head commit
func (l *localFS) treeDigest(root string) (string, error) {
	var lines []string
	err := afero.Walk(l.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		content, err := afero.ReadFile(l.fs, p)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), root+"/")
		lines = append(lines, rel+" "+BlobSHA(content))
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(lines)
	return BlobSHA([]byte(strings.Join(lines, "\n"))), nil
}

func (l *localFS) CommitSHA(_ context.Context, repo storage.Repository, ref string) (string, error) {
	if err := validRef(ref); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitSHA(repo, ref)
}

func (l *localFS) commitSHA(repo storage.Repository, ref string) (string, error) {
	root := refDir(repo, ref)
	exists, err := l.isDir(root)
	if err != nil {
		return "", status.ErrStorageAPI.Wrap(err)
	}
	if !exists {
		return "", status.ErrNotFound.WrapMessage("no ref %q in %s", ref, repo)
	}
	digest, err := l.treeDigest(root)
	if err != nil {
		return "", status.ErrStorageAPI.Wrap(err)
	}
	l.commits[digest] = ref
	return digest, nil
}

func (l *localFS) CreateBranch(_ context.Context, repo storage.Repository, name, fromSHA string) error {
	if err := validRef(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	target := refDir(repo, name)
	exists, err := l.isDir(target)
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	if exists {
		return status.ErrExists.WrapMessage("branch %q in %s", name, repo)
	}
	from, ok := l.commits[fromSHA]
	if !ok {
		return status.ErrNotFound.WrapMessage("unknown commit %s in %s", fromSHA, repo)
	}
	source := refDir(repo, from)
	if err := l.fs.MkdirAll(target, dirPerm); err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	err = afero.Walk(l.fs, source, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		content, err := afero.ReadFile(l.fs, p)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), source+"/")
		return l.atomicPut(path.Join(target, rel), content)
	})
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	return nil
}

func (l *localFS) BranchExists(_ context.Context, repo storage.Repository, name string) (bool, error) {
	if err := validRef(name); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	exists, err := l.isDir(refDir(repo, name))
	if err != nil {
		return false, status.ErrStorageAPI.Wrap(err)
	}
	return exists, nil
}

func (l *localFS) ListBranches(_ context.Context, repo storage.Repository, prefix string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	infos, err := afero.ReadDir(l.fs, repoDir(repo))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotFound.WrapMessage("no repository %s", repo)
		}
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	var branches []string
	for _, info := range infos {
		if info.IsDir() && strings.HasPrefix(info.Name(), prefix) {
			branches = append(branches, info.Name())
		}
	}
	return branches, nil
}

func (l *localFS) DeleteBranch(_ context.Context, repo storage.Repository, name string) error {
	if err := validRef(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	target := refDir(repo, name)
	exists, err := l.isDir(target)
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	if !exists {
		return status.ErrNotFound.WrapMessage("no branch %q in %s", name, repo)
	}
	if err := l.fs.RemoveAll(target); err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	return nil
}
