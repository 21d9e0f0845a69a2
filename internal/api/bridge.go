package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/inkwell/internal/blogservice"
	"github.com/starford/inkwell/internal/journal"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/oplog"
	"github.com/starford/inkwell/internal/profile"
)

// maxRequestBody bounds IPC payloads; saves carry inline images.
const maxRequestBody = 32 << 20

// Request is the body of POST /ipc/{channel}.
type Request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Deps are the collaborators a Bridge dispatches to. Journal may be nil.
type Deps struct {
	Blogs    *blogservice.Holder
	Profiles *profile.Store
	Log      *oplog.File
	Journal  *journal.DB
}

// Bridge routes UI calls on the blogs, config, logger and journal channels.
type Bridge struct {
	deps     Deps
	uiLog    *slog.Logger
	channels map[string]map[string]action
}

type action func(ctx context.Context, data json.RawMessage) (any, error)

// badRequest marks errors that are the caller's fault.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

type configResult struct {
	Config profile.Profile `json:"config"`
}

type logResult struct {
	Log string `json:"log"`
}

type entriesResult struct {
	Entries []journal.Entry `json:"entries"`
}

var okResult = blogservice.MutationResult{Success: true}

func failResult(err error) blogservice.MutationResult {
	return blogservice.MutationResult{Error: err.Error()}
}

// NewBridge returns a bridge over d.
func NewBridge(d Deps) *Bridge {
	b := &Bridge{
		deps:  d,
		uiLog: d.Log.Logger(slog.LevelDebug).With("source", "ui"),
	}
	b.channels = map[string]map[string]action{
		"blogs": {
			"read":   b.blogsRead,
			"get":    b.blogsGet,
			"save":   b.blogsSave,
			"delete": b.blogsDelete,
		},
		"config": {
			"read": b.configRead,
			"save": b.configSave,
		},
		"logger": {
			"log":   b.loggerWrite(slog.LevelInfo),
			"error": b.loggerWrite(slog.LevelError),
			"read":  b.loggerRead,
			"clear": b.loggerClear,
		},
		"journal": {
			"list":    b.journalList,
			"resolve": b.journalResolve,
			"replay":  b.journalReplay,
		},
	}
	return b
}

// Dispatch runs action on channel.
func (b *Bridge) Dispatch(ctx context.Context, channel string, req Request) (any, error) {
	actions, ok := b.channels[channel]
	if !ok {
		return nil, badRequestf("unknown channel %q", channel)
	}
	fn, ok := actions[req.Action]
	if !ok {
		return nil, badRequestf("unknown action %q on channel %q", req.Action, channel)
	}
	return fn(ctx, req.Data)
}

// ServeIPC handles POST /ipc/{channel}.
func (b *Bridge) ServeIPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	channel := chi.URLParam(r, "channel")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	res, err := b.Dispatch(r.Context(), channel, req)
	if err != nil {
		var br *badRequest
		if errors.As(err, &br) {
			writeJSON(w, http.StatusBadRequest, errorBody(br.msg))
			return
		}
		slog.Error("ipc call failed", slog.String("channel", channel), slog.String("action", req.Action), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeData[T any](data json.RawMessage, what string) (T, error) {
	var v T
	if len(data) == 0 {
		return v, badRequestf("%s is required", what)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, badRequestf("invalid %s: %v", what, err)
	}
	return v, nil
}

func (b *Bridge) blogsRead(ctx context.Context, _ json.RawMessage) (any, error) {
	return b.deps.Blogs.Current().ListBlogs(ctx), nil
}

func (b *Bridge) blogsGet(ctx context.Context, data json.RawMessage) (any, error) {
	slug, err := decodeData[string](data, "slug")
	if err != nil {
		return nil, err
	}
	return b.deps.Blogs.Current().GetBlog(ctx, slug), nil
}

func (b *Bridge) blogsSave(ctx context.Context, data json.RawMessage) (any, error) {
	blog, err := decodeData[models.Blog](data, "blog")
	if err != nil {
		return nil, err
	}
	return b.deps.Blogs.Current().SaveBlog(ctx, blog), nil
}

func (b *Bridge) blogsDelete(ctx context.Context, data json.RawMessage) (any, error) {
	slug, err := decodeData[string](data, "slug")
	if err != nil {
		return nil, err
	}
	return b.deps.Blogs.Current().DeleteBlog(ctx, slug), nil
}

func (b *Bridge) configRead(_ context.Context, _ json.RawMessage) (any, error) {
	p, err := b.deps.Profiles.Load()
	if err != nil {
		return nil, err
	}
	return configResult{Config: p.Redacted()}, nil
}

// configSave stores the profile and switches the blog service to it. A
// blank or redacted token keeps the stored one.
func (b *Bridge) configSave(_ context.Context, data json.RawMessage) (any, error) {
	in, err := decodeData[profile.Profile](data, "config")
	if err != nil {
		return nil, err
	}
	cur, err := b.deps.Profiles.Load()
	if err != nil {
		return failResult(err), nil
	}
	p := in.KeepToken(cur)
	if err := b.deps.Profiles.Save(p); err != nil {
		return failResult(err), nil
	}
	if err := b.deps.Blogs.Reload(p); err != nil {
		return failResult(err), nil
	}
	b.uiLog.Info("profile saved", "owner", p.Owner, "repo", p.Repo, "branch", p.Branch)
	return okResult, nil
}

func (b *Bridge) loggerWrite(level slog.Level) action {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		msg, err := decodeData[string](data, "message")
		if err != nil {
			return nil, err
		}
		b.uiLog.Log(ctx, level, msg)
		return okResult, nil
	}
}

func (b *Bridge) loggerRead(_ context.Context, _ json.RawMessage) (any, error) {
	text, err := b.deps.Log.Read()
	if err != nil {
		return nil, err
	}
	return logResult{Log: text}, nil
}

func (b *Bridge) loggerClear(_ context.Context, _ json.RawMessage) (any, error) {
	if err := b.deps.Log.Clear(); err != nil {
		return failResult(err), nil
	}
	return okResult, nil
}

func (b *Bridge) journalList(ctx context.Context, _ json.RawMessage) (any, error) {
	if b.deps.Journal == nil {
		return entriesResult{Entries: []journal.Entry{}}, nil
	}
	entries, err := b.deps.Journal.List(ctx, false)
	if err != nil {
		return nil, err
	}
	return entriesResult{Entries: entries}, nil
}

func (b *Bridge) journalResolve(ctx context.Context, data json.RawMessage) (any, error) {
	id, err := decodeData[string](data, "entry id")
	if err != nil {
		return nil, err
	}
	if b.deps.Journal == nil {
		return failResult(errors.New("journal disabled")), nil
	}
	if err := b.deps.Journal.Resolve(ctx, id); err != nil {
		return failResult(err), nil
	}
	return okResult, nil
}

func (b *Bridge) journalReplay(ctx context.Context, data json.RawMessage) (any, error) {
	id, err := decodeData[string](data, "entry id")
	if err != nil {
		return nil, err
	}
	if b.deps.Journal == nil {
		return failResult(errors.New("journal disabled")), nil
	}
	if err := b.deps.Journal.Replay(ctx, id, b.deps.Blogs.Current().Reconcile); err != nil {
		return failResult(err), nil
	}
	return okResult, nil
}
