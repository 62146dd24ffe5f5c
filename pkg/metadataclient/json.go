package metadataclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
)

func (c *Client) postJSON(ctx context.Context, op, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return cacheerr.Wrap(cacheerr.KindValidation, op, err)
	}

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
		return cacheerr.New(cacheerr.KindTransport, op, http.StatusText(resp.StatusCode))
	case resp.StatusCode >= 400:
		return cacheerr.New(cacheerr.KindValidation, op, http.StatusText(resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	return decodeJSON(resp.Body, out)
}

func decodeJSON(r io.Reader, out interface{}) error {
	return json.NewDecoder(r).Decode(out)
}
