package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/inkwell/internal/dataurl"
)

const maxImageSize = 10 << 20 // 10 MB

// fetchFunc downloads rawURL and returns its body and Content-Type.
type fetchFunc func(ctx context.Context, rawURL string) ([]byte, string, error)

func (s *Server) setBlogImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	uri := rawURL
	if !dataurl.IsImage(rawURL) {
		data, contentType, err := s.fetch(ctx, rawURL)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		uri = dataurl.Encode(contentType, data)
	}
	img, err := dataurl.Decode(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := img.Verify(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	svc := s.blogs.Current()
	got := svc.GetBlog(ctx, slug)
	if got.Error != "" {
		return mcp.NewToolResultError(got.Error), nil
	}
	b := *got.Blog
	b.Image = uri
	return mutationResult(svc.SaveBlog(ctx, b), "image set: "+slug), nil
}

// fetchHTTP downloads an image with scheme, host, redirect and size limits.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %q (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{DialContext: guardedDialer().DialContext},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, "", fmt.Errorf("image too large: exceeds %d bytes", maxImageSize)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// guardedDialer refuses connections to blocked addresses. The check runs on
// the address actually dialed, after DNS resolution.
func guardedDialer() *net.Dialer {
	return &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || blockedIP(ip) {
				return fmt.Errorf("blocked address: %s", address)
			}
			return nil
		},
	}
}

// checkBlockedHost rejects loopback, link-local and cloud metadata hosts
// before any request is made.
func checkBlockedHost(host string) error {
	if strings.EqualFold(host, "metadata.google.internal") || strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return checkIPs(host, []net.IP{ip})
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil //nolint:nilerr // let http.Client report DNS failures
	}
	return checkIPs(host, ips)
}

func checkIPs(host string, ips []net.IP) error {
	for _, ip := range ips {
		if blockedIP(ip) {
			return fmt.Errorf("blocked host: %s", host)
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
