package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v75/github"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/profile"
)

const (
	// RawBaseURL serves repository files by branch.
	RawBaseURL = "https://raw.githubusercontent.com/"

	rawMediaType = "application/vnd.github.raw"
)

var _ Provider = (*GitHub)(nil)

// GitHub implements Provider on top of the GitHub Contents API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// NewGitHub returns a client for the repository and branch named by p,
// authenticating every request with p.Token. httpClient may be nil.
func NewGitHub(p profile.Profile, httpClient *http.Client) (*GitHub, error) {
	base, err := url.Parse(p.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("storage: parse api url: %w", err)
	}
	client := github.NewClient(httpClient).WithAuthToken(p.Token)
	client.BaseURL = base
	return &GitHub{
		client: client,
		owner:  p.Owner,
		repo:   p.Repo,
		branch: p.Branch,
	}, nil
}

// Read fetches the raw content of path on the configured branch.
func (g *GitHub) Read(ctx context.Context, path string) ([]byte, error) {
	u := g.contentsURL(path) + "?ref=" + url.QueryEscape(g.branch)
	req, err := g.client.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, &apperr.RemoteError{Op: "read", Path: path, Err: err}
	}
	req.Header.Set("Accept", rawMediaType)

	var buf bytes.Buffer
	if _, err := g.client.Do(ctx, req, &buf); err != nil {
		return nil, remoteError("read", path, err)
	}
	return buf.Bytes(), nil
}

// Write creates path, or updates it when it already exists on the branch.
// The update carries the blob SHA seen by the lookup; if the file changed in
// between, GitHub rejects the write and the conflict is returned as is.
func (g *GitHub) Write(ctx context.Context, path string, content []byte, message string) error {
	sha, err := g.blobSHA(ctx, path)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("fetching file info: %w", err)
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: content,
		Branch:  github.Ptr(g.branch),
	}
	if sha != "" {
		opts.SHA = github.Ptr(sha)
		_, _, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts)
	} else {
		_, _, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	}
	if err != nil {
		return remoteError("write", path, err)
	}
	return nil
}

// URL returns the raw.githubusercontent.com address of path.
func (g *GitHub) URL(path string) string {
	return RawBaseURL + g.owner + "/" + g.repo + "/" + g.branch + "/" + path
}

// blobSHA returns the current version token of path.
func (g *GitHub) blobSHA(ctx context.Context, path string) (string, error) {
	file, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, &github.RepositoryContentGetOptions{
		Ref: g.branch,
	})
	if err != nil {
		return "", remoteError("stat", path, err)
	}
	if file == nil {
		return "", &apperr.RemoteError{Op: "stat", Path: path, Err: errors.New("path is a directory")}
	}
	return file.GetSHA(), nil
}

func (g *GitHub) contentsURL(path string) string {
	escaped := (&url.URL{Path: strings.TrimSuffix(path, "/")}).String()
	return fmt.Sprintf("repos/%s/%s/contents/%s", url.PathEscape(g.owner), url.PathEscape(g.repo), escaped)
}

// remoteError turns a go-github error into an *apperr.RemoteError, mapping
// 404 to apperr.ErrNotFound and 409 to apperr.ErrConflict.
func remoteError(op, path string, err error) error {
	var (
		errResp *github.ErrorResponse
		rateErr *github.RateLimitError
	)
	switch {
	case errors.As(err, &errResp) && errResp.Response != nil:
		status := errResp.Response.StatusCode
		msg := errResp.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		inner := errors.New(msg)
		switch status {
		case http.StatusNotFound:
			inner = fmt.Errorf("%w: %s", apperr.ErrNotFound, msg)
		case http.StatusConflict:
			inner = fmt.Errorf("%w: %s", apperr.ErrConflict, msg)
		}
		return &apperr.RemoteError{Op: op, Path: path, Status: status, Err: inner}
	case errors.As(err, &rateErr) && rateErr.Response != nil:
		return &apperr.RemoteError{Op: op, Path: path, Status: rateErr.Response.StatusCode, Err: errors.New(rateErr.Message)}
	default:
		return &apperr.RemoteError{Op: op, Path: path, Err: err}
	}
}
