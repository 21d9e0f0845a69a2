package internal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/inkwell/internal/api"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/profile"
	"github.com/starford/inkwell/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Profile.Path = filepath.Join(dir, "profile.yaml")
	cfg.Oplog.Path = filepath.Join(dir, "inkwell.log")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	return cfg
}

func TestOpen_CreatesStateFiles(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	for _, p := range []string{cfg.Profile.Path, cfg.Oplog.Path, cfg.Journal.Path} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not created: %v", p, err)
		}
	}
	if rt.Journal == nil || rt.Blogs.Current() == nil {
		t.Fatal("runtime not fully wired")
	}
	if err := rt.Blogs.Current().Profile().Check(); err == nil {
		t.Error("fresh profile should be incomplete")
	}
}

func TestOpen_JournalDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = ""
	rt, err := Open(WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	if rt.Journal != nil {
		t.Error("journal opened while disabled")
	}

	res, err := rt.Bridge().Dispatch(context.Background(), "journal", api.Request{Action: "list"})
	if err != nil {
		t.Fatal(err)
	}
	out, _ := json.Marshal(res)
	if string(out) != `{"entries":[]}` {
		t.Errorf("list = %s", out)
	}
}

func TestOpen_RequiresConfig(t *testing.T) {
	if _, err := Open(); err == nil {
		t.Error("expected error without config")
	}
}

func TestBridge_ConfigSaveReloads(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	data, _ := json.Marshal(profile.Profile{Owner: "a", Repo: "b", Branch: "drafts", Token: "t"})
	if _, err := rt.Bridge().Dispatch(context.Background(), "config", api.Request{Action: "save", Data: data}); err != nil {
		t.Fatal(err)
	}
	if got := rt.Blogs.Current().Profile(); got.Owner != "a" || got.Branch != "drafts" {
		t.Errorf("service profile = %+v", got)
	}
}

func TestOplog_RecordsMutationsAboveProcessLevel(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	cfg := testConfig(t)
	cfg.App.LogLevel = slog.LevelWarn
	if err := profile.NewStore(cfg.Profile.Path).Save(gh.Profile()); err != nil {
		t.Fatal(err)
	}
	rt, err := Open(WithConfig(cfg), WithLogOutput(io.Discard), WithHTTPClient(gh.Server.Client()))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	ctx := context.Background()
	data, _ := json.Marshal(models.Blog{Slug: "hello", Title: "Hello", Content: "<p>hi</p>"})
	if _, err := rt.Bridge().Dispatch(ctx, "blogs", api.Request{Action: "save", Data: data}); err != nil {
		t.Fatal(err)
	}
	slug, _ := json.Marshal("hello")
	if _, err := rt.Bridge().Dispatch(ctx, "blogs", api.Request{Action: "delete", Data: slug}); err != nil {
		t.Fatal(err)
	}

	text, err := rt.Oplog.Read()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"blog saved", "blog deleted"} {
		if !strings.Contains(text, want) {
			t.Errorf("oplog missing %q:\n%s", want, text)
		}
	}
}
