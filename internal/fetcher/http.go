package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	RateLimiters map[string]*rate.Limiter
}

// HTTPFetcher implements Fetcher using net/http with retry and per-host
// rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
}

// DefaultRateLimiters returns the default per-host rate limiters. The data
// portal asks integrators to stay well under its burst ceiling.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"data.neonscience.org": rate.NewLimiter(4, 8),
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "trapline/1.0"
	}

	limiters := DefaultRateLimiters()
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
		fallback: rate.NewLimiter(10, 10),
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return f.fallback
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return f.fallback
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range f.opts.MaxRetries {
		lim := f.limiterFor(req.URL.String())
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		cloned := req.Clone(ctx)
		resp, err := f.client.Do(cloned)
		if err != nil {
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			f.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http 429 from %s", req.URL.String())
			zap.L().Warn("rate limited (429), backing off",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
			)
			f.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String())
			zap.L().Warn("server error, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			f.backoff(ctx, attempt)
			continue
		}

		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(f.opts.BackoffBase) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	d = d + jitter

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, nil
}

// DownloadIfChanged fetches the URL only if the ETag has changed.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "download if changed")
	}

	if resp.StatusCode == http.StatusNotModified {
		_ = resp.Body.Close()
		return nil, etag, false, nil
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, "", false, eris.Errorf("download if changed: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	newETag := resp.Header.Get("ETag")
	return resp.Body, newETag, true, nil
}
