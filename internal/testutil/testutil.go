// Package testutil provides shared test helpers: an in-memory GitHub Contents
// API and ready-made stores and journals.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/inkwell/internal/checksum"
	"github.com/starford/inkwell/internal/journal"
	"github.com/starford/inkwell/internal/profile"
	"github.com/starford/inkwell/internal/storage"
)

// Commit is one accepted write.
type Commit struct {
	Path    string
	Message string
	Branch  string
	SHA     string // blob SHA after the write
}

// FakeGitHub serves the subset of the Contents API that storage.GitHub uses:
// raw and JSON reads, and create-or-update with blob SHA checks.
type FakeGitHub struct {
	Server *httptest.Server

	Owner  string
	Repo   string
	Branch string
	Token  string

	// BeforeWrite, if set, runs before a PUT is applied.
	BeforeWrite func(path string)

	mu         sync.Mutex
	files      map[string][]byte
	commits    []Commit
	writeFails map[string]int
	readFails  map[string]int
	requests   atomic.Int64
	accepts    []string
}

// NewFakeGitHub starts a fake for owner "a", repo "b", branch "main" and
// token "t". It is closed when the test ends.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{
		Owner:      "a",
		Repo:       "b",
		Branch:     "main",
		Token:      "t",
		files:      make(map[string][]byte),
		writeFails: make(map[string]int),
		readFails:  make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.countAndAuth)
	r.Route("/repos/{owner}/{repo}/contents", func(r chi.Router) {
		r.Use(f.repoOnly)
		r.Get("/*", f.handleGet)
		r.Put("/*", f.handlePut)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// Profile returns a complete profile pointing at the fake.
func (f *FakeGitHub) Profile() profile.Profile {
	return profile.Profile{
		Owner:  f.Owner,
		Repo:   f.Repo,
		Branch: f.Branch,
		Token:  f.Token,
		APIURL: f.Server.URL,
	}
}

// Put seeds a file without recording a commit.
func (f *FakeGitHub) Put(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = append([]byte(nil), data...)
}

// File returns the current content of p.
func (f *FakeGitHub) File(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return data, ok
}

// Paths returns every stored path, sorted.
func (f *FakeGitHub) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.files))
	for p := range f.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Commits returns accepted writes in order.
func (f *FakeGitHub) Commits() []Commit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Commit(nil), f.commits...)
}

// Accepts returns the Accept header of every request in order.
func (f *FakeGitHub) Accepts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accepts...)
}

// FailWrite makes every PUT to p answer with status.
func (f *FakeGitHub) FailWrite(p string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeFails[p] = status
}

// FailRead makes every GET of p answer with status.
func (f *FakeGitHub) FailRead(p string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readFails[p] = status
}

// ClearFailures removes every injected read and write failure.
func (f *FakeGitHub) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.writeFails)
	clear(f.readFails)
}

// Requests returns the number of requests served.
func (f *FakeGitHub) Requests() int {
	return int(f.requests.Load())
}

func (f *FakeGitHub) countAndAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		f.accepts = append(f.accepts, r.Header.Get("Accept"))
		f.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+f.Token {
			writeMessage(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGitHub) repoOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "owner") != f.Owner || chi.URLParam(r, "repo") != f.Repo {
			writeMessage(w, http.StatusNotFound, "Not Found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGitHub) handleGet(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	if ref := r.URL.Query().Get("ref"); ref != "" && ref != f.Branch {
		writeMessage(w, http.StatusNotFound, "No commit found for the ref "+ref)
		return
	}

	f.mu.Lock()
	status, failing := f.readFails[p]
	data, ok := f.files[p]
	f.mu.Unlock()

	if failing {
		writeMessage(w, status, http.StatusText(status))
		return
	}
	if !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}

	if r.Header.Get("Accept") == "application/vnd.github.raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	writeJSON(w, http.StatusOK, fileJSON(p, data))
}

func (f *FakeGitHub) handlePut(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	var req struct {
		Message string  `json:"message"`
		Content []byte  `json:"content"`
		Branch  string  `json:"branch"`
		SHA     *string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	if f.BeforeWrite != nil {
		f.BeforeWrite(p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if status, failing := f.writeFails[p]; failing {
		writeMessage(w, status, http.StatusText(status))
		return
	}
	if req.Branch != f.Branch {
		writeMessage(w, http.StatusNotFound, "Branch "+req.Branch+" not found")
		return
	}

	current, exists := f.files[p]
	switch {
	case exists && req.SHA == nil:
		writeMessage(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
		return
	case exists && *req.SHA != checksum.GitBlob(current):
		writeMessage(w, http.StatusConflict, p+" does not match "+*req.SHA)
		return
	}

	f.files[p] = req.Content
	sha := checksum.GitBlob(req.Content)
	f.commits = append(f.commits, Commit{Path: p, Message: req.Message, Branch: req.Branch, SHA: sha})

	status := http.StatusCreated
	if exists {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"content": fileJSON(p, req.Content),
		"commit":  map[string]any{"message": req.Message},
	})
}

func fileJSON(p string, data []byte) map[string]any {
	return map[string]any{
		"type":     "file",
		"encoding": "base64",
		"size":     len(data),
		"name":     path.Base(p),
		"path":     p,
		"content":  base64.StdEncoding.EncodeToString(data),
		"sha":      checksum.GitBlob(data),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// NewStore returns a storage.GitHub talking to f.
func NewStore(t *testing.T, f *FakeGitHub) *storage.GitHub {
	t.Helper()
	store, err := storage.NewGitHub(f.Profile(), f.Server.Client())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// TestJournal opens a journal in a temporary directory.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	db, err := journal.Open(t.TempDir() + "/journal.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
