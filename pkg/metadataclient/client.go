// Package metadataclient implements the cache-plane JSON-over-HTTP client
// described in spec.md §6: batched save/restore against
// /api/v1/cache/cargo/{save,restore,reset}.
package metadataclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/wire"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the cache plane's base, e.g.
	// "https://cache.example.com/api/v1/cache/cargo".
	BaseURL     string
	BearerToken string
	// RequestTimeout bounds a single HTTP call (default 15s).
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
}

// Client is the metadata-service client.
type Client struct {
	cfg   Config
	httpc *http.Client
}

// New constructs a Client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg, httpc: cfg.HTTPClient}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
}

// Restore posts the given unit keys to /restore in batches of at most
// wire.MaxKeysPerRestoreRequest (the §6 wire ceiling, not the smaller
// 10,000-per-request batch size spec.md §4.6 step 2 describes the planner
// using for latency — see wire.MaxKeysPerRestoreRequest's doc comment).
// Restore errors degrade to an empty hit set on NotFound/Transport per
// spec.md §7 — this client surfaces the error to the caller (the cache
// engine is what downgrades it to "cache miss"), since a client has no
// business deciding engine-level recovery policy.
func (c *Client) Restore(ctx context.Context, keys []hashkey.Key) (map[hashkey.Key]savedunit.SavedUnit, error) {
	hits := make(map[hashkey.Key]savedunit.SavedUnit, len(keys))

	for _, batch := range batchKeys(keys, wire.MaxKeysPerRestoreRequest) {
		req := wire.RestoreRequest{Keys: hexKeys(batch)}
		var resp wire.RestoreResponse

		if err := c.postJSON(ctx, "metadata.restore", c.cfg.BaseURL+"/restore", req, &resp); err != nil {
			return nil, err
		}

		for hex, su := range resp.Hits {
			key, err := hashkey.FromHex(hex)
			if err != nil {
				return nil, cacheerr.Wrap(cacheerr.KindValidation, "metadata.restore", err)
			}
			hits[key] = su
		}
	}

	return hits, nil
}

// Save posts the given save plan to /save in batches of at most
// wire.MaxUnitsPerSaveRequest units. The server upserts: a later save for
// the same unit key replaces prior content.
func (c *Client) Save(ctx context.Context, plan map[hashkey.Key]savedunit.SavedUnit) error {
	keys := make([]hashkey.Key, 0, len(plan))
	for k := range plan {
		keys = append(keys, k)
	}

	for _, batch := range batchKeys(keys, wire.MaxUnitsPerSaveRequest) {
		body := make(wire.SavePlan, len(batch))
		for _, k := range batch {
			body[k.String()] = plan[k]
		}
		if err := c.postJSON(ctx, "metadata.save", c.cfg.BaseURL+"/save", body, nil); err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes all cached data for the caller's organization. Irreversible.
func (c *Client) Reset(ctx context.Context) error {
	return c.postJSON(ctx, "metadata.reset", c.cfg.BaseURL+"/reset", struct{}{}, nil)
}

// ResetPreview calls the supplemental, read-only reset-preview diagnostic
// endpoint (SPEC_FULL.md) that reports how many unit keys and content keys
// a reset would affect, without performing it.
func (c *Client) ResetPreview(ctx context.Context) (*wire.ResetPreviewResponse, error) {
	var resp wire.ResetPreviewResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/reset/preview", nil)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.KindValidation, "metadata.reset_preview", err)
	}
	c.authorize(req)

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.KindTransport, "metadata.reset_preview", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, cacheerr.New(cacheerr.KindTransport, "metadata.reset_preview", http.StatusText(httpResp.StatusCode))
	}
	if err := decodeJSON(httpResp.Body, &resp); err != nil {
		return nil, cacheerr.Wrap(cacheerr.KindValidation, "metadata.reset_preview", err)
	}
	return &resp, nil
}

func batchKeys(keys []hashkey.Key, size int) [][]hashkey.Key {
	if len(keys) == 0 {
		return nil
	}
	var batches [][]hashkey.Key
	for i := 0; i < len(keys); i += size {
		end := i + size
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[i:end])
	}
	return batches
}

func hexKeys(keys []hashkey.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
