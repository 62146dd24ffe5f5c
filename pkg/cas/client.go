// Package cas implements the Content-Addressed Store client: blob
// upload/download with bulk and streaming paths, bounded concurrency,
// retry-with-backoff for transport failures, and a client-side LRU
// visibility cache. Transfer buffers are drawn from pkg/bufpool.
package cas

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hurrycache/hurrycache/pkg/bufpool"
	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/wire"
)

// retryConfig mirrors the teacher's S3ContentStore retry/backoff shape,
// applied here to the CAS HTTP transport instead of S3 API calls.
type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxRetries:        4,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        5 * time.Second,
		backoffMultiplier: 2.0,
	}
}

// Config configures a Client.
type Config struct {
	// BaseURL is the metadata service's CAS plane base, e.g.
	// "https://cache.example.com/api/v1/cas".
	BaseURL string
	// BearerToken authenticates every request.
	BearerToken string
	// UploadConcurrency bounds in-flight uploads (default 16).
	UploadConcurrency int
	// DownloadConcurrency bounds in-flight downloads (default 16).
	DownloadConcurrency int
	// AllowedKeysCacheSize bounds the global LRU visibility cache
	// (default 10_000_000, per spec.md §5).
	AllowedKeysCacheSize int
	// RequestTimeout bounds a single HTTP call (default 15s, per spec.md §5).
	RequestTimeout time.Duration
	// HTTPClient is used for all requests if set; otherwise a client with
	// RequestTimeout is constructed.
	HTTPClient *http.Client
	// AcceptZstd enables requesting zstd-compressed bodies on reads, per
	// SPEC_FULL.md's compression-negotiation supplement.
	AcceptZstd bool
}

func (c *Config) applyDefaults() {
	if c.UploadConcurrency <= 0 {
		c.UploadConcurrency = 16
	}
	if c.DownloadConcurrency <= 0 {
		c.DownloadConcurrency = 16
	}
	if c.AllowedKeysCacheSize <= 0 {
		c.AllowedKeysCacheSize = 10_000_000
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
}

// Client is the CAS client described by spec.md §4.3.
type Client struct {
	cfg     Config
	retry   retryConfig
	httpc   *http.Client
	uploads chan struct{}
	downs   chan struct{}

	allowedKeys *lru.Cache[string, bool]
}

// New constructs a Client. The allowed-keys cache is a single LRU sized by
// Config.AllowedKeysCacheSize, since this client is scoped to one
// organization's bearer token for its lifetime; there is no separate
// per-organization cap.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	cache, err := lru.New[string, bool](cfg.AllowedKeysCacheSize)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.KindValidation, "cas.new", err)
	}

	return &Client{
		cfg:         cfg,
		retry:       defaultRetryConfig(),
		httpc:       cfg.HTTPClient,
		uploads:     make(chan struct{}, cfg.UploadConcurrency),
		downs:       make(chan struct{}, cfg.DownloadConcurrency),
		allowedKeys: cache,
	}, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
}

// Exists performs a HEAD-style presence check, consulting the local
// allowed-keys cache first.
func (c *Client) Exists(ctx context.Context, key hashkey.Key) (bool, error) {
	if ok, hit := c.allowedKeys.Get(key.String()); hit {
		return ok, nil
	}

	var present bool
	err := c.withRetry(ctx, "cas.exists", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL+"/"+key.String(), nil)
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindValidation, "cas.exists", err)
		}
		c.authorize(req)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindTransport, "cas.exists", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			present = true
			return nil
		case http.StatusNotFound:
			present = false
			return nil
		case http.StatusUnauthorized:
			return cacheerr.New(cacheerr.KindAuthorization, "cas.exists", "unauthorized").WithKey(key.String())
		default:
			return transportErrorForStatus("cas.exists", resp.StatusCode, key.String())
		}
	})
	if err != nil {
		return false, err
	}

	c.allowedKeys.Add(key.String(), present)
	return present, nil
}

// Read streams the blob body for key. Failure modes: NotFound,
// Authorization, Transport.
func (c *Client) Read(ctx context.Context, key hashkey.Key) (io.ReadCloser, error) {
	c.downs <- struct{}{}
	defer func() { <-c.downs }()

	var body io.ReadCloser
	err := c.withRetry(ctx, "cas.read", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+key.String(), nil)
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindValidation, "cas.read", err)
		}
		c.authorize(req)
		if c.cfg.AcceptZstd {
			req.Header.Set("Accept-Encoding", "zstd")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindTransport, "cas.read", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			body = resp.Body
			return nil
		case http.StatusNotFound:
			resp.Body.Close()
			return cacheerr.New(cacheerr.KindNotFound, "cas.read", "object not found").WithKey(key.String())
		case http.StatusUnauthorized:
			resp.Body.Close()
			return cacheerr.New(cacheerr.KindAuthorization, "cas.read", "unauthorized").WithKey(key.String())
		default:
			resp.Body.Close()
			return transportErrorForStatus("cas.read", resp.StatusCode, key.String())
		}
	})
	return body, err
}

// Write uploads a single object. The server verifies the received bytes
// hash to key; a mismatch is reported as a Validation error.
func (c *Client) Write(ctx context.Context, key hashkey.Key, body []byte) error {
	c.uploads <- struct{}{}
	defer func() { <-c.uploads }()

	return c.withRetry(ctx, "cas.write", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.BaseURL+"/"+key.String(), bytes.NewReader(body))
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindValidation, "cas.write", err)
		}
		c.authorize(req)
		req.ContentLength = int64(len(body))

		resp, err := c.httpc.Do(req)
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindTransport, "cas.write", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			c.allowedKeys.Add(key.String(), true)
			return nil
		case http.StatusConflict:
			return cacheerr.New(cacheerr.KindValidation, "cas.write", "hash mismatch").WithKey(key.String())
		case http.StatusUnauthorized:
			return cacheerr.New(cacheerr.KindAuthorization, "cas.write", "unauthorized").WithKey(key.String())
		default:
			return transportErrorForStatus("cas.write", resp.StatusCode, key.String())
		}
	})
}

// BulkCheck asks the server which of keys are already stored and visible
// to the caller.
func (c *Client) BulkCheck(ctx context.Context, keys []hashkey.Key) (map[hashkey.Key]bool, error) {
	req := wire.BulkCheckRequest{Keys: hexKeys(keys)}
	var resp wire.BulkCheckResponse

	err := c.postJSON(ctx, "cas.bulk_check", c.cfg.BaseURL+"/bulk-check", req, &resp)
	if err != nil {
		return nil, err
	}

	present := make(map[hashkey.Key]bool, len(keys))
	presentSet := make(map[string]bool, len(resp.Present))
	for _, h := range resp.Present {
		presentSet[h] = true
	}
	for _, k := range keys {
		ok := presentSet[k.String()]
		present[k] = ok
		c.allowedKeys.Add(k.String(), ok)
	}
	return present, nil
}

// BulkWriteItem is one object submitted to BulkWrite.
type BulkWriteItem struct {
	Key  hashkey.Key
	Body []byte
}

// BulkWriteResult is the outcome of a BulkWrite call. Written, Skipped,
// and the keys of Errors together are always exactly the requested key
// set with no duplicates (spec.md §8 invariant 6). Errors is never fatal
// to the call itself: partial success is normal.
type BulkWriteResult struct {
	Written []hashkey.Key
	Skipped []hashkey.Key
	Errors  []BulkWriteError
}

// BulkWriteError reports a per-item failure within a bulk write. It
// implements error so engine-level code can treat the first failure as an
// opaque cause without re-deriving a message.
type BulkWriteError struct {
	Key     hashkey.Key
	Message string
}

func (e BulkWriteError) Error() string {
	return "cas: bulk write failed for " + e.Key.String() + ": " + e.Message
}

// BulkWrite uploads items in parallel up to the client's upload
// concurrency cap and returns per-key outcomes.
func (c *Client) BulkWrite(ctx context.Context, items []BulkWriteItem) (*BulkWriteResult, error) {
	result := &BulkWriteResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, item := range items {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Write(ctx, item.Key, item.Body)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Written = append(result.Written, item.Key)
			case cacheerr.IsKind(err, cacheerr.KindValidation):
				result.Errors = append(result.Errors, BulkWriteError{Key: item.Key, Message: err.Error()})
			default:
				result.Errors = append(result.Errors, BulkWriteError{Key: item.Key, Message: err.Error()})
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// BulkReadResult pairs a key with either its bytes or an omission reason.
type BulkReadResult struct {
	Key   hashkey.Key
	Body  []byte
	Found bool
}

// BulkRead streams each requested blob back. Keys the server cannot serve
// are reported with Found=false rather than causing the call to fail.
func (c *Client) BulkRead(ctx context.Context, keys []hashkey.Key) ([]BulkReadResult, error) {
	results := make([]BulkReadResult, len(keys))
	var wg sync.WaitGroup

	for i, key := range keys {
		i, key := i, key
		wg.Add(1)
		go func() {
			defer wg.Done()

			// c.Read already bounds its own concurrency via c.downs;
			// acquiring it again here would double up per logical
			// download and deadlock once in-flight goroutines reach
			// DownloadConcurrency.
			rc, err := c.Read(ctx, key)
			if err != nil {
				results[i] = BulkReadResult{Key: key, Found: false}
				return
			}
			defer rc.Close()

			buf := bufpool.Get(bufpool.DefaultLargeSize)
			defer bufpool.Put(buf)

			var out bytes.Buffer
			if _, err := io.CopyBuffer(&out, rc, buf); err != nil {
				results[i] = BulkReadResult{Key: key, Found: false}
				return
			}
			results[i] = BulkReadResult{Key: key, Body: out.Bytes(), Found: true}
		}()
	}
	wg.Wait()
	return results, nil
}

// withRetry retries op on Transport-kind failures with exponential backoff
// and jitter: one initial attempt plus at most c.retry.maxRetries retries
// (c.retry.maxRetries+1 calls of fn in total). Validation and
// Authorization errors are never retried.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := c.retry.initialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.retry.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cacheerr.IsKind(err, cacheerr.KindTransport) {
			return err
		}
		if attempt == c.retry.maxRetries {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(backoff) + 1)) //nolint:gosec // jitter, not security-sensitive
		select {
		case <-time.After(backoff + jitter/2):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * c.retry.backoffMultiplier)
		if backoff > c.retry.maxBackoff {
			backoff = c.retry.maxBackoff
		}
	}

	_ = op
	return lastErr
}

func transportErrorForStatus(op string, status int, key string) error {
	if status >= 500 {
		return cacheerr.New(cacheerr.KindTransport, op, httpStatusText(status)).WithKey(key)
	}
	return cacheerr.New(cacheerr.KindValidation, op, httpStatusText(status)).WithKey(key)
}

func httpStatusText(status int) string {
	return http.StatusText(status)
}

func hexKeys(keys []hashkey.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
