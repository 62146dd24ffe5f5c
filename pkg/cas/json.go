package cas

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
)

// postJSON posts body as JSON to url and decodes the response into out,
// applying the client's retry policy to transport-level failures.
func (c *Client) postJSON(ctx context.Context, op, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return cacheerr.Wrap(cacheerr.KindValidation, op, err)
	}

	return c.withRetry(ctx, op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindValidation, op, err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return cacheerr.Wrap(cacheerr.KindTransport, op, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return cacheerr.New(cacheerr.KindAuthorization, op, "unauthorized")
		case resp.StatusCode >= 500:
			return cacheerr.New(cacheerr.KindTransport, op, httpStatusText(resp.StatusCode))
		case resp.StatusCode >= 400:
			return cacheerr.New(cacheerr.KindValidation, op, httpStatusText(resp.StatusCode))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return cacheerr.Wrap(cacheerr.KindValidation, op, err)
		}
		return nil
	})
}
