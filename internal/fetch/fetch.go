// Package fetch copies source archives from URLs, S3 buckets and local paths
// into place, retrying transient upstream failures.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/rs/dnscache"

	"taucmdr/internal/ui"
)

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream unavailable")
)

// Fetcher downloads files. The zero value is not usable; call New.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	progress   bool
	s3         ObjectGetter
	log        *ui.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets how many times a rate limited or failing upstream is retried.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the initial delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithProgress enables or disables the download progress bar.
func WithProgress(on bool) Option {
	return func(f *Fetcher) {
		f.progress = on
	}
}

// WithS3 sets the client used for s3:// sources.
func WithS3(g ObjectGetter) Option {
	return func(f *Fetcher) {
		f.s3 = g
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(l *ui.Logger) Option {
	return func(f *Fetcher) {
		f.log = l
	}
}

// New creates a Fetcher. By default HTTP lookups go through a DNS cache and
// the progress bar is shown when stderr is a terminal.
func New(opts ...Option) *Fetcher {
	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute, // Archives can be large
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "taucmdr",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		progress:   ui.IsTerminal(os.Stderr),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Download copies src to the file dest. src may be an http(s) URL,
// an s3://bucket/key URL, a file:// URL or a plain path. dest is replaced
// atomically, so a failed download never leaves a partial file behind.
func (f *Fetcher) Download(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", dest, err)
	}

	u, err := url.Parse(src)
	scheme := ""
	if err == nil {
		scheme = strings.ToLower(u.Scheme)
	}

	f.log.Debugf("Downloading %s -> %s", src, dest)
	switch scheme {
	case "http", "https":
		return f.downloadHTTP(ctx, src, dest)
	case "s3":
		return f.downloadS3(ctx, u, dest)
	case "file":
		return copyFile(u.Path, dest)
	case "":
		return copyFile(src, dest)
	default:
		return fmt.Errorf("unsupported source scheme %q in %s", scheme, src)
	}
}

// writeAtomic streams r into dest through a pending file in the same directory.
func writeAtomic(dest string, r io.Reader) error {
	pf, err := renameio.TempFile(filepath.Dir(dest), dest)
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", dest, err)
	}
	defer pf.Cleanup()

	if _, err := io.Copy(pf, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := pf.Chmod(0o644); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	if st, err := in.Stat(); err == nil && st.IsDir() {
		return fmt.Errorf("%s is a directory, not an archive", src)
	}
	return writeAtomic(dest, in)
}
