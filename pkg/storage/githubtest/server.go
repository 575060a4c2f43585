// Package githubtest serves an in-memory fake of the subset of the GitHub REST API
// used by the registry: contents, refs, branches, releases, comparisons, pull requests and labels.
package githubtest

import (
	"crypto/sha1" // #nosec: git object ids are SHA-1
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

// DefaultBranch of all fake repositories
const DefaultBranch = "main"

// WriteHook is called before a file write is applied.
//
// It runs without holding the server lock, so it may modify the server state,
// e.g. to simulate a concurrent writer.
type WriteHook func(repo, branch, filePath string)

// Server is a fake GitHub API.
//
// All repositories are created on first use with an empty default branch.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	repos    map[string]*repoState
	failures []*failure
	requests map[string]int
	hook     WriteHook
}

type branchState struct {
	files   map[string][]byte
	commits []string
}

type repoState struct {
	branches map[string]*branchState
	release  string
	pulls    []*PullRequest
	seq      int
}

type failure struct {
	method string
	prefix string
	status int
	times  int
}

// NewServer starts a fake GitHub API. It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		repos:    make(map[string]*repoState),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base URL to configure API clients with
func (s *Server) APIURL() string {
	return s.URL + "/"
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countAndFail)

	r.Route("/repos/{owner}/{repo}", func(r chi.Router) {
		r.Get("/contents", s.getContents)
		r.Get("/contents/*", s.getContents)
		r.Put("/contents/*", s.putContents)
		r.Get("/releases/latest", s.getLatestRelease)
		r.Get("/commits/{ref}", s.getCommit)
		r.Post("/git/refs", s.createRef)
		r.Delete("/git/refs/heads/{branch}", s.deleteRef)
		r.Get("/branches", s.listBranches)
		r.Get("/branches/{branch}", s.getBranch)
		r.Get("/compare/{basehead}", s.compare)
		r.Get("/pulls", s.listPulls)
		r.Post("/pulls", s.createPull)
		r.Patch("/pulls/{number}", s.editPull)
		r.Post("/issues/{number}/labels", s.addLabels)
	})
	return r
}

// OnWrite installs a hook called before each file write
func (s *Server) OnWrite(hook WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// FailNext makes the next calls matching a method and a path prefix fail with some HTTP status
func (s *Server) FailNext(method, pathPrefix string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, prefix: pathPrefix, status: status, times: times})
}

// Requests counts the requests received for a method and a path prefix
func (s *Server) Requests(method, pathPrefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key, n := range s.requests {
		parts := strings.SplitN(key, " ", 2)
		if parts[0] == method && strings.HasPrefix(parts[1], pathPrefix) {
			count += n
		}
	}
	return count
}

// TotalRequests counts all requests received
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.requests {
		count += n
	}
	return count
}

func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		for _, f := range s.failures {
			if f.times > 0 && f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix) {
				f.times--
				s.mu.Unlock()
				writeError(w, f.status, http.StatusText(f.status))
				return
			}
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// repo returns the state of a repository, creating it when needed. The lock must be held.
func (s *Server) repo(fullName string) *repoState {
	st, ok := s.repos[fullName]
	if !ok {
		st = &repoState{branches: map[string]*branchState{
			DefaultBranch: {files: make(map[string][]byte), commits: []string{commitSHA(fullName, "initial commit")}},
		}}
		s.repos[fullName] = st
	}
	return st
}

func repoName(r *http.Request) string {
	return chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
}

// SetFile seeds a file on a branch, creating the branch from the default branch when missing
func (s *Server) SetFile(repo, branch, filePath string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repo)
	b, ok := st.branches[branch]
	if !ok {
		b = st.branches[DefaultBranch].clone()
		st.branches[branch] = b
	}
	b.write(repo, filePath, content)
}

// File returns the content of a file on a branch
func (s *Server) File(repo, branch, filePath string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.repo(repo).branches[branch]
	if !ok {
		return nil, false
	}
	content, ok := b.files[filePath]
	return content, ok
}

// Files lists the paths of all files on a branch
func (s *Server) Files(repo, branch string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.repo(repo).branches[branch]
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(b.files))
	for p := range b.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Commits counts the commits on a branch
func (s *Server) Commits(repo, branch string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.repo(repo).branches[branch]
	if !ok {
		return 0
	}
	return len(b.commits)
}

// SetRelease sets the latest release tag of a repository
func (s *Server) SetRelease(repo, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repo(repo).release = tag
}

// CreateBranch seeds a branch from the default branch
func (s *Server) CreateBranch(repo, branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repo)
	if _, ok := st.branches[branch]; !ok {
		st.branches[branch] = st.branches[DefaultBranch].clone()
	}
}

// Branches lists the branches of a repository
func (s *Server) Branches(repo string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo(repo).branchNames()
}

// OpenPull seeds an open pull request
func (s *Server) OpenPull(repo, head, base, title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo(repo).openPull(head, base, title, "")
}

// PullRequest describes a pull request of the fake server
type PullRequest struct {
	Number int
	Title  string
	Body   string
	State  string
	Head   string
	Base   string
	Labels []string
}

// PullRequests lists all pull requests of a repository
func (s *Server) PullRequests(repo string) []PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	pulls := s.repo(repo).pulls
	res := make([]PullRequest, 0, len(pulls))
	for _, p := range pulls {
		c := *p
		c.Labels = append([]string(nil), p.Labels...)
		res = append(res, c)
	}
	return res
}

func (st *repoState) branchNames() []string {
	names := make([]string, 0, len(st.branches))
	for name := range st.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (st *repoState) openPull(head, base, title, body string) int {
	st.seq++
	st.pulls = append(st.pulls, &PullRequest{Number: st.seq, Title: title, Body: body, State: "open", Head: head, Base: base})
	return st.seq
}

func (st *repoState) branchByCommit(sha string) (*branchState, int) {
	for _, b := range st.branches {
		for i, c := range b.commits {
			if c == sha {
				return b, i
			}
		}
	}
	return nil, -1
}

func (b *branchState) clone() *branchState {
	c := &branchState{
		files:   make(map[string][]byte, len(b.files)),
		commits: append([]string(nil), b.commits...),
	}
	for k, v := range b.files {
		c.files[k] = v
	}
	return c
}

func (b *branchState) head() string {
	return b.commits[len(b.commits)-1]
}

func (b *branchState) write(repo, filePath string, content []byte) string {
	b.files[filePath] = append([]byte(nil), content...)
	sha := commitSHA(repo, b.head(), filePath, BlobSHA(content))
	b.commits = append(b.commits, sha)
	return sha
}

// BlobSHA computes the git object id of some content
func BlobSHA(content []byte) string {
	h := sha1.New() // #nosec
	_, _ = fmt.Fprintf(h, "blob %d\x00", len(content))
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func commitSHA(parts ...string) string {
	h := sha1.New() // #nosec
	_, _ = h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

type errorBody struct {
	Message string        `json:"message"`
	Errors  []interface{} `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = jsoniter.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details ...interface{}) {
	writeJSON(w, status, errorBody{Message: message, Errors: details})
}

func ref(r *http.Request) string {
	if ref := r.URL.Query().Get("ref"); ref != "" {
		return ref
	}
	return DefaultBranch
}

func contentItem(filePath string, content []byte) map[string]interface{} {
	return map[string]interface{}{
		"type":     "file",
		"encoding": "base64",
		"name":     path.Base(filePath),
		"path":     filePath,
		"size":     len(content),
		"sha":      BlobSHA(content),
		"content":  base64.StdEncoding.EncodeToString(content),
	}
}

func (s *Server) getContents(w http.ResponseWriter, r *http.Request) {
	filePath := strings.Trim(chi.URLParam(r, "*"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repoName(r))

	b, ok := st.branches[ref(r)]
	if !ok {
		if st.release == ref(r) {
			b = st.branches[DefaultBranch]
		} else {
			writeError(w, http.StatusNotFound, "No commit found for the ref "+ref(r))
			return
		}
	}
	if content, ok := b.files[filePath]; ok {
		writeJSON(w, http.StatusOK, contentItem(filePath, content))
		return
	}

	// directory listing
	prefix := filePath + "/"
	if filePath == "" {
		prefix = ""
	}
	seen := make(map[string]bool)
	var entries []map[string]interface{}
	for p, content := range b.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name := strings.SplitN(rest, "/", 2)[0]
		if seen[name] {
			continue
		}
		seen[name] = true
		entry := map[string]interface{}{"name": name, "path": prefix + name}
		if name == rest {
			entry["type"] = "file"
			entry["sha"] = BlobSHA(content)
		} else {
			entry["type"] = "dir"
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i]["name"].(string) < entries[j]["name"].(string) })
	writeJSON(w, http.StatusOK, entries)
}

type putBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

func (s *Server) putContents(w http.ResponseWriter, r *http.Request) {
	filePath := strings.Trim(chi.URLParam(r, "*"), "/")
	var body putBody
	if err := jsoniter.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}
	if body.Branch == "" {
		body.Branch = DefaultBranch
	}
	name := repoName(r)

	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(name, body.Branch, filePath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.repo(name).branches[body.Branch]
	if !ok {
		writeError(w, http.StatusNotFound, "Branch "+body.Branch+" not found")
		return
	}
	current, exists := b.files[filePath]
	switch {
	case exists && body.SHA == "":
		writeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
		return
	case exists && body.SHA != BlobSHA(current):
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", filePath, body.SHA))
		return
	case !exists && body.SHA != "":
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", filePath, body.SHA))
		return
	}
	commit := b.write(name, filePath, content)
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"content": contentItem(filePath, content),
		"commit":  map[string]interface{}{"sha": commit, "message": body.Message},
	})
}

func (s *Server) getLatestRelease(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repoName(r))
	if st.release == "" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tag_name": st.release, "name": st.release})
}

func (s *Server) getCommit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.repo(repoName(r)).branches[chi.URLParam(r, "ref")]
	if !ok {
		writeError(w, http.StatusNotFound, "No commit found for SHA: "+chi.URLParam(r, "ref"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.github.v3.sha; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.head()))
}

type refBody struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

func (s *Server) createRef(w http.ResponseWriter, r *http.Request) {
	var body refBody
	if err := jsoniter.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	name := strings.TrimPrefix(body.Ref, "refs/heads/")
	if name == body.Ref || name == "" {
		writeError(w, http.StatusUnprocessableEntity, "Reference name is invalid")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repoName(r))
	if _, exists := st.branches[name]; exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	}
	from, at := st.branchByCommit(body.SHA)
	if from == nil {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	b := from.clone()
	b.commits = b.commits[:at+1]
	st.branches[name] = b
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ref":    body.Ref,
		"object": map[string]interface{}{"sha": body.SHA, "type": "commit"},
	})
}

func (s *Server) deleteRef(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repoName(r))
	name := chi.URLParam(r, "branch")
	if _, exists := st.branches[name]; !exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference does not exist")
		return
	}
	delete(st.branches, name)
	w.WriteHeader(http.StatusNoContent)
}

func branchItem(name string, b *branchState) map[string]interface{} {
	return map[string]interface{}{
		"name":   name,
		"commit": map[string]interface{}{"sha": b.head()},
	}
}

func (s *Server) listBranches(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repoName(r))
	res := make([]map[string]interface{}, 0, len(st.branches))
	for _, name := range st.branchNames() {
		res = append(res, branchItem(name, st.branches[name]))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getBranch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := chi.URLParam(r, "branch")
	b, ok := s.repo(repoName(r)).branches[name]
	if !ok {
		writeError(w, http.StatusNotFound, "Branch not found")
		return
	}
	writeJSON(w, http.StatusOK, branchItem(name, b))
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(chi.URLParam(r, "basehead"), "...", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(repoName(r))
	base, okBase := st.branches[parts[0]]
	head, okHead := st.branches[parts[1]]
	if !okBase || !okHead {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	common := 0
	for common < len(base.commits) && common < len(head.commits) && base.commits[common] == head.commits[common] {
		common++
	}
	ahead, behind := len(head.commits)-common, len(base.commits)-common
	compareStatus := "identical"
	switch {
	case ahead > 0 && behind > 0:
		compareStatus = "diverged"
	case ahead > 0:
		compareStatus = "ahead"
	case behind > 0:
		compareStatus = "behind"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        compareStatus,
		"ahead_by":      ahead,
		"behind_by":     behind,
		"total_commits": ahead,
	})
}

func pullItem(repo string, p *PullRequest) map[string]interface{} {
	return map[string]interface{}{
		"number":   p.Number,
		"title":    p.Title,
		"body":     p.Body,
		"state":    p.State,
		"html_url": fmt.Sprintf("https://github.com/%s/pull/%d", repo, p.Number),
		"head":     map[string]interface{}{"ref": p.Head},
		"base":     map[string]interface{}{"ref": p.Base},
	}
}

func (s *Server) listPulls(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "open"
	}
	name := repoName(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]map[string]interface{}, 0)
	for _, p := range s.repo(name).pulls {
		if state == "all" || p.State == state {
			res = append(res, pullItem(name, p))
		}
	}
	writeJSON(w, http.StatusOK, res)
}

type pullBody struct {
	Title string  `json:"title"`
	Head  string  `json:"head"`
	Base  string  `json:"base"`
	Body  string  `json:"body"`
	State *string `json:"state"`
}

func (s *Server) createPull(w http.ResponseWriter, r *http.Request) {
	var body pullBody
	if err := jsoniter.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	name := repoName(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.repo(name)
	if _, ok := st.branches[body.Head]; !ok {
		writeError(w, http.StatusUnprocessableEntity, "Validation Failed",
			map[string]string{"resource": "PullRequest", "field": "head", "code": "invalid"})
		return
	}
	for _, p := range st.pulls {
		if p.State == "open" && p.Head == body.Head && p.Base == body.Base {
			owner := strings.SplitN(name, "/", 2)[0]
			writeError(w, http.StatusUnprocessableEntity, "Validation Failed",
				map[string]string{"resource": "PullRequest", "code": "custom",
					"message": fmt.Sprintf("A pull request already exists for %s:%s.", owner, body.Head)})
			return
		}
	}
	number := st.openPull(body.Head, body.Base, body.Title, body.Body)
	writeJSON(w, http.StatusCreated, pullItem(name, st.pulls[number-1]))
}

func (s *Server) pull(w http.ResponseWriter, r *http.Request) (*PullRequest, bool) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	st := s.repo(repoName(r))
	if err != nil || number < 1 || number > len(st.pulls) {
		writeError(w, http.StatusNotFound, "Not Found")
		return nil, false
	}
	return st.pulls[number-1], true
}

func (s *Server) editPull(w http.ResponseWriter, r *http.Request) {
	var body pullBody
	if err := jsoniter.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pull(w, r)
	if !ok {
		return
	}
	if body.State != nil {
		p.State = *body.State
	}
	if body.Title != "" {
		p.Title = body.Title
	}
	writeJSON(w, http.StatusOK, pullItem(repoName(r), p))
}

func (s *Server) addLabels(w http.ResponseWriter, r *http.Request) {
	var labels []string
	if err := jsoniter.NewDecoder(r.Body).Decode(&labels); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pull(w, r)
	if !ok {
		return
	}
	p.Labels = append(p.Labels, labels...)
	res := make([]map[string]string, 0, len(p.Labels))
	for _, l := range p.Labels {
		res = append(res, map[string]string{"name": l})
	}
	writeJSON(w, http.StatusOK, res)
}
