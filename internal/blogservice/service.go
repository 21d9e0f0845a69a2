// Package blogservice implements the blog operations the UI calls: list,
// get, save and delete, each returning a JSON envelope instead of an error.
package blogservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/blogindex"
	"github.com/starford/inkwell/internal/dataurl"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/profile"
	"github.com/starford/inkwell/internal/slug"
	"github.com/starford/inkwell/internal/storage"
)

// Operation names used in partial failures and journal entries.
const (
	OpSave   = "save"
	OpDelete = "delete"
)

// Event kinds passed to a Notifier.
const (
	EventSaved   = "blog.saved"
	EventDeleted = "blog.deleted"
)

// FailureRecorder persists partially applied operations.
type FailureRecorder interface {
	RecordPartial(ctx context.Context, pf *apperr.PartialFailure) error
}

// Notifier is told about every successful change.
type Notifier interface {
	PublishBlogEvent(kind, slug string)
}

// ListResult is the envelope returned by ListBlogs. Blogs is never nil.
type ListResult struct {
	Blogs []models.Blog `json:"blogs"`
	Error string        `json:"error,omitempty"`
}

// GetResult is the envelope returned by GetBlog. Blog is nil on error.
type GetResult struct {
	Blog  *models.Blog `json:"blog"`
	Error string       `json:"error,omitempty"`
}

// MutationResult is the envelope returned by SaveBlog and DeleteBlog.
type MutationResult struct {
	Success   bool     `json:"success,omitempty"`
	Error     string   `json:"error,omitempty"`
	Partial   bool     `json:"partial,omitempty"`
	Committed []string `json:"committed,omitempty"`
}

// Service composes the remote store and the index for one profile.
type Service struct {
	profile  profile.Profile
	store    storage.Provider
	index    *blogindex.Manager
	now      func() time.Time
	logger   *slog.Logger
	recorder FailureRecorder
	notifier Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for date stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the operations logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRecorder records partial failures.
func WithRecorder(r FailureRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithNotifier publishes change events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// New returns a service for p that talks to store.
func New(p profile.Profile, store storage.Provider, opts ...Option) *Service {
	s := &Service{
		profile: p,
		store:   store,
		index:   blogindex.New(store),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FromProfile builds the GitHub store for p and returns a service over it.
// An incomplete profile is accepted; every operation then fails its
// configuration check without a remote call.
func FromProfile(p profile.Profile, httpClient *http.Client, opts ...Option) (*Service, error) {
	store, err := storage.NewGitHub(p, httpClient)
	if err != nil {
		return nil, err
	}
	return New(p, store, opts...), nil
}

// Profile returns the profile the service was built with.
func (s *Service) Profile() profile.Profile { return s.profile }

// ListBlogs returns every blog in the index.
func (s *Service) ListBlogs(ctx context.Context) ListResult {
	blogs, err := s.list(ctx)
	if err != nil {
		s.logger.Error("list blogs failed", "error", err)
		return ListResult{Blogs: []models.Blog{}, Error: err.Error()}
	}
	return ListResult{Blogs: blogs}
}

// GetBlog returns the record stored for slug.
func (s *Service) GetBlog(ctx context.Context, slug string) GetResult {
	b, err := s.get(ctx, slug)
	if err != nil {
		s.logger.Error("get blog failed", "slug", slug, "error", err)
		return GetResult{Error: err.Error()}
	}
	return GetResult{Blog: b}
}

// SaveBlog creates or replaces b.
func (s *Service) SaveBlog(ctx context.Context, b models.Blog) MutationResult {
	saved, err := s.save(ctx, b)
	if err != nil {
		s.logger.Error("save blog failed", "slug", b.Slug, "title", b.Title, "error", err)
		return s.failed(ctx, err)
	}
	s.logger.Info("blog saved", "slug", saved.Slug, "title", saved.Title)
	s.notify(EventSaved, saved.Slug)
	return MutationResult{Success: true}
}

// DeleteBlog removes slug from the index after recording the deletion as a
// commit on the record file. The record file itself stays in the repository.
func (s *Service) DeleteBlog(ctx context.Context, slug string) MutationResult {
	if err := s.delete(ctx, slug); err != nil {
		s.logger.Error("delete blog failed", "slug", slug, "error", err)
		return s.failed(ctx, err)
	}
	s.logger.Info("blog deleted", "slug", slug)
	s.notify(EventDeleted, slug)
	return MutationResult{Success: true}
}

// Reconcile repeats the index step of a partially applied operation: after
// a save it upserts the stored record, after a delete it drops the slug.
func (s *Service) Reconcile(ctx context.Context, op, blogSlug string) error {
	if err := s.profile.Check(); err != nil {
		return err
	}
	if !slug.Valid(blogSlug) {
		return fmt.Errorf("%w: invalid slug %q", apperr.ErrInvalidBlog, blogSlug)
	}
	switch op {
	case OpSave:
		b, err := s.readRecord(ctx, blogSlug)
		if err != nil {
			return err
		}
		if err := s.index.Upsert(ctx, *b, "New blog: "+b.Title); err != nil {
			return err
		}
		s.logger.Info("index reconciled", "op", op, "slug", blogSlug)
		s.notify(EventSaved, blogSlug)
	case OpDelete:
		if err := s.index.Remove(ctx, blogSlug, "Deleted blog: "+blogSlug); err != nil {
			return err
		}
		s.logger.Info("index reconciled", "op", op, "slug", blogSlug)
		s.notify(EventDeleted, blogSlug)
	default:
		return fmt.Errorf("blogservice: unknown operation %q", op)
	}
	return nil
}

func (s *Service) list(ctx context.Context) ([]models.Blog, error) {
	if err := s.profile.Check(); err != nil {
		return nil, err
	}
	return s.index.List(ctx)
}

func (s *Service) get(ctx context.Context, blogSlug string) (*models.Blog, error) {
	if err := s.profile.Check(); err != nil {
		return nil, err
	}
	if !slug.Valid(blogSlug) {
		return nil, fmt.Errorf("%w: invalid slug %q", apperr.ErrInvalidBlog, blogSlug)
	}
	return s.readRecord(ctx, blogSlug)
}

func (s *Service) save(ctx context.Context, b models.Blog) (*models.Blog, error) {
	if err := s.profile.Check(); err != nil {
		return nil, err
	}
	if b.Slug == "" {
		b.Slug = slug.Make(b.Title)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidBlog, err)
	}
	b.Stamp(s.now())

	var img *dataurl.Image
	if dataurl.IsImage(b.Image) {
		var err error
		if img, err = dataurl.Decode(b.Image); err != nil {
			return nil, fmt.Errorf("%w: image: %v", apperr.ErrInvalidBlog, err)
		}
		if img.Format == "" {
			s.logger.Info("image format not recognised, storing as is", "slug", b.Slug, "mediaType", img.MediaType)
		}
	}

	var committed []string
	partial := func(err error) error {
		if len(committed) == 0 {
			return err
		}
		return &apperr.PartialFailure{Op: OpSave, Slug: b.Slug, Committed: committed, Err: err}
	}

	if img != nil {
		path := storage.ImagePath(b.Slug)
		if err := s.store.Write(ctx, path, img.Data, "Updated image: "+b.Title); err != nil {
			return nil, err
		}
		committed = append(committed, path)
		b.Image = s.store.URL(path)
	}

	data, err := models.Encode(b)
	if err != nil {
		return nil, partial(fmt.Errorf("blogservice: encode %s: %w", b.Slug, err))
	}
	path := storage.BlogPath(b.Slug)
	if err := s.store.Write(ctx, path, data, "New blog: "+b.Title); err != nil {
		return nil, partial(err)
	}
	committed = append(committed, path)

	if err := s.index.Upsert(ctx, b, "New blog: "+b.Title); err != nil {
		return nil, partial(err)
	}
	return &b, nil
}

func (s *Service) delete(ctx context.Context, blogSlug string) error {
	if err := s.profile.Check(); err != nil {
		return err
	}
	if !slug.Valid(blogSlug) {
		return fmt.Errorf("%w: invalid slug %q", apperr.ErrInvalidBlog, blogSlug)
	}
	b, err := s.readRecord(ctx, blogSlug)
	if err != nil {
		return err
	}
	data, err := models.Encode(b)
	if err != nil {
		return fmt.Errorf("blogservice: encode %s: %w", blogSlug, err)
	}

	msg := "Deleted blog: " + blogSlug
	path := storage.BlogPath(blogSlug)
	if err := s.store.Write(ctx, path, data, msg); err != nil {
		return err
	}
	if err := s.index.Remove(ctx, blogSlug, msg); err != nil {
		return &apperr.PartialFailure{Op: OpDelete, Slug: blogSlug, Committed: []string{path}, Err: err}
	}
	return nil
}

func (s *Service) readRecord(ctx context.Context, blogSlug string) (*models.Blog, error) {
	path := storage.BlogPath(blogSlug)
	data, err := s.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	var b models.Blog
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrParse, path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrParse, path, err)
	}
	return &b, nil
}

// failed builds the error envelope and journals partial failures.
func (s *Service) failed(ctx context.Context, err error) MutationResult {
	res := MutationResult{Error: err.Error()}
	var pf *apperr.PartialFailure
	if !errors.As(err, &pf) {
		return res
	}
	res.Partial = true
	res.Committed = pf.Committed
	if s.recorder != nil {
		if rerr := s.recorder.RecordPartial(context.WithoutCancel(ctx), pf); rerr != nil {
			s.logger.Error("journal partial failure", "op", pf.Op, "slug", pf.Slug, "error", rerr)
		}
	}
	return res
}

func (s *Service) notify(kind, blogSlug string) {
	if s.notifier != nil {
		s.notifier.PublishBlogEvent(kind, blogSlug)
	}
}
