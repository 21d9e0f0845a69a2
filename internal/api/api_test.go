package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/inkwell/internal/blogservice"
	"github.com/starford/inkwell/internal/journal"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/oplog"
	"github.com/starford/inkwell/internal/profile"
	"github.com/starford/inkwell/internal/storage"
	"github.com/starford/inkwell/internal/testutil"
)

type testEnv struct {
	gh       *testutil.FakeGitHub
	profiles *profile.Store
	log      *oplog.File
	journal  *journal.DB
	blogs    *blogservice.Holder
	router   http.Handler
}

func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()
	gh := testutil.NewFakeGitHub(t)
	dir := t.TempDir()

	profiles := profile.NewStore(filepath.Join(dir, "profile.yaml"))
	if err := profiles.Save(gh.Profile()); err != nil {
		t.Fatal(err)
	}
	logFile, err := oplog.Open(filepath.Join(dir, "inkwell.log"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { logFile.Close() })
	db := testutil.TestJournal(t)

	blogs, err := blogservice.NewHolder(gh.Profile(), gh.Server.Client(),
		blogservice.WithLogger(logFile.Logger(nil)),
		blogservice.WithRecorder(db),
	)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBridge(Deps{Blogs: blogs, Profiles: profiles, Log: logFile, Journal: db})
	return &testEnv{
		gh:       gh,
		profiles: profiles,
		log:      logFile,
		journal:  db,
		blogs:    blogs,
		router:   NewRouter(b, authToken != "", authToken, nil),
	}
}

func (e *testEnv) call(t *testing.T, channel, action string, data any) (int, map[string]any) {
	t.Helper()
	req := map[string]any{"action": action}
	if data != nil {
		req["data"] = data
	}
	body, _ := json.Marshal(req)
	r := httptest.NewRequest(http.MethodPost, "/"+channel, bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s/%s: decode %q: %v", channel, action, w.Body.String(), err)
	}
	return w.Code, out
}

func TestBlogsChannel_SaveGetReadDelete(t *testing.T) {
	env := newTestEnv(t, "")

	code, res := env.call(t, "blogs", "save", models.Blog{Slug: "hello", Title: "Hello", Content: "<p>hi</p>"})
	if code != http.StatusOK || res["success"] != true {
		t.Fatalf("save = %d %v", code, res)
	}

	_, res = env.call(t, "blogs", "get", "hello")
	blog, ok := res["blog"].(map[string]any)
	if !ok || blog["title"] != "Hello" || blog["content"] != "<p>hi</p>" {
		t.Fatalf("get = %v", res)
	}

	_, res = env.call(t, "blogs", "read", nil)
	if blogs, _ := res["blogs"].([]any); len(blogs) != 1 {
		t.Fatalf("read = %v", res)
	}

	_, res = env.call(t, "blogs", "delete", "hello")
	if res["success"] != true {
		t.Fatalf("delete = %v", res)
	}
	_, res = env.call(t, "blogs", "read", nil)
	if blogs, ok := res["blogs"].([]any); !ok || len(blogs) != 0 {
		t.Fatalf("read after delete = %v", res)
	}
}

func TestBlogsChannel_ErrorEnvelopes(t *testing.T) {
	env := newTestEnv(t, "")

	code, res := env.call(t, "blogs", "read", nil)
	if code != http.StatusOK || res["error"] == nil {
		t.Fatalf("read of missing index = %d %v", code, res)
	}
	if blogs, ok := res["blogs"].([]any); !ok || len(blogs) != 0 {
		t.Errorf("blogs = %#v, want []", res["blogs"])
	}

	_, res = env.call(t, "blogs", "get", "missing")
	if v, present := res["blog"]; !present || v != nil || res["error"] == nil {
		t.Errorf("get missing = %v", res)
	}
}

func TestBlogsChannel_PartialFailureEnvelope(t *testing.T) {
	env := newTestEnv(t, "")
	env.gh.FailWrite(storage.IndexPath, http.StatusInternalServerError)

	_, res := env.call(t, "blogs", "save", models.Blog{Slug: "hello", Title: "Hello", Content: "x"})
	if res["partial"] != true || res["error"] == nil {
		t.Fatalf("save = %v", res)
	}

	_, res = env.call(t, "journal", "list", nil)
	entries, _ := res["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", res)
	}
	id := entries[0].(map[string]any)["id"].(string)

	env.gh.ClearFailures()
	_, res = env.call(t, "journal", "replay", id)
	if res["success"] != true {
		t.Fatalf("replay = %v", res)
	}
	_, res = env.call(t, "journal", "list", nil)
	if entries, _ := res["entries"].([]any); len(entries) != 0 {
		t.Errorf("entries after replay = %v", res)
	}
}

func TestJournalChannel_Resolve(t *testing.T) {
	env := newTestEnv(t, "")
	env.gh.FailWrite(storage.IndexPath, http.StatusInternalServerError)
	env.call(t, "blogs", "save", models.Blog{Slug: "hello", Title: "Hello", Content: "x"})

	entries, _ := env.journal.List(t.Context(), false)
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	_, res := env.call(t, "journal", "resolve", entries[0].ID)
	if res["success"] != true {
		t.Fatalf("resolve = %v", res)
	}
	_, res = env.call(t, "journal", "resolve", "unknown")
	if res["error"] == nil {
		t.Errorf("resolve unknown = %v", res)
	}
}

func TestConfigChannel(t *testing.T) {
	env := newTestEnv(t, "")

	_, res := env.call(t, "config", "read", nil)
	cfg, _ := res["config"].(map[string]any)
	if cfg["owner"] != "a" || cfg["token"] != profile.RedactedToken {
		t.Fatalf("config read = %v", res)
	}

	// Saving back the redacted form switches the branch and keeps the token.
	cfg["branch"] = "drafts"
	_, res = env.call(t, "config", "save", cfg)
	if res["success"] != true {
		t.Fatalf("config save = %v", res)
	}
	stored, err := env.profiles.Load()
	if err != nil {
		t.Fatal(err)
	}
	if stored.Branch != "drafts" || stored.Token != "t" {
		t.Errorf("stored = %+v", stored.Redacted())
	}
	if env.blogs.Current().Profile().Branch != "drafts" {
		t.Error("service not rebuilt for new profile")
	}
}

func TestLoggerChannel(t *testing.T) {
	env := newTestEnv(t, "")

	if _, res := env.call(t, "logger", "log", "editor opened"); res["success"] != true {
		t.Fatalf("log = %v", res)
	}
	if _, res := env.call(t, "logger", "error", "upload failed"); res["success"] != true {
		t.Fatalf("error = %v", res)
	}
	_, res := env.call(t, "logger", "read", nil)
	text, _ := res["log"].(string)
	if !strings.Contains(text, "editor opened") || !strings.Contains(text, "level=ERROR") {
		t.Errorf("log = %q", text)
	}

	if _, res := env.call(t, "logger", "clear", nil); res["success"] != true {
		t.Fatalf("clear = %v", res)
	}
	_, res = env.call(t, "logger", "read", nil)
	if res["log"] != "" {
		t.Errorf("log after clear = %q", res["log"])
	}
}

func TestUnknownChannelAndAction(t *testing.T) {
	env := newTestEnv(t, "")

	if code, _ := env.call(t, "nope", "read", nil); code != http.StatusBadRequest {
		t.Errorf("unknown channel = %d", code)
	}
	if code, _ := env.call(t, "blogs", "explode", nil); code != http.StatusBadRequest {
		t.Errorf("unknown action = %d", code)
	}
	if code, _ := env.call(t, "blogs", "get", nil); code != http.StatusBadRequest {
		t.Errorf("missing data = %d", code)
	}
	if code, _ := env.call(t, "blogs", "get", 42); code != http.StatusBadRequest {
		t.Errorf("wrong data type = %d", code)
	}

	r := httptest.NewRequest(http.MethodPost, "/blogs", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d", w.Code)
	}
}

func TestAuthTokenMode(t *testing.T) {
	env := newTestEnv(t, "s3cret")
	body := `{"action":"read"}`

	r := httptest.NewRequest(http.MethodPost, "/blogs", strings.NewReader(body))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/blogs", strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/blogs", strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestReady(t *testing.T) {
	env := newTestEnv(t, "")
	w := httptest.NewRecorder()
	Ready(env.blogs)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("ready = %d", w.Code)
	}

	if err := env.blogs.Reload(profile.Profile{Owner: "a"}); err != nil {
		t.Fatal(err)
	}
	w = httptest.NewRecorder()
	Ready(env.blogs)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with incomplete profile = %d", w.Code)
	}
}
