package blogservice

import (
	"net/http"
	"sync/atomic"

	"github.com/starford/inkwell/internal/profile"
)

// Holder keeps the service for the current profile and swaps it atomically
// when the profile changes. Calls in flight finish on the service they
// started with.
type Holder struct {
	cur        atomic.Pointer[Service]
	httpClient *http.Client
	opts       []Option
}

// NewHolder builds the first service from p.
func NewHolder(p profile.Profile, httpClient *http.Client, opts ...Option) (*Holder, error) {
	h := &Holder{httpClient: httpClient, opts: opts}
	if err := h.Reload(p); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the active service.
func (h *Holder) Current() *Service {
	return h.cur.Load()
}

// Reload replaces the active service with one built from p.
func (h *Holder) Reload(p profile.Profile) error {
	svc, err := FromProfile(p, h.httpClient, h.opts...)
	if err != nil {
		return err
	}
	h.cur.Store(svc)
	return nil
}
