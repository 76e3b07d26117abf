package netops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes bounds how much of a vendor response is read; anything
// larger than this is not a control-plane reply we understand.
const maxBodyBytes = 1 << 20

// restClient is the request plumbing shared by the REST-style
// adapters. It converts transport failures into TransientError and
// malformed bodies into ProtocolError; HTTP status handling stays with
// the individual adapter because vendors disagree about what a 4xx
// means.
type restClient struct {
	vendor string
	http   *http.Client
}

// doJSON performs one JSON request. A nil body sends no payload, a nil
// out skips decoding. The raw body is always returned so adapters can
// embed it in protocol errors.
func (c *restClient) doJSON(ctx context.Context, op, method, url string, headers map[string]string, body, out any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, &ProtocolError{Vendor: c.vendor, Op: op, Msg: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, &ProtocolError{Vendor: c.vendor, Op: op, Msg: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, transientErr(c.vendor, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, transientErr(c.vendor, op, err)
	}

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, &ProtocolError{
				Vendor: c.vendor,
				Op:     op,
				Msg:    fmt.Sprintf("malformed response: %v", err),
				Raw:    truncate(raw, 256),
			}
		}
	}

	return resp.StatusCode, raw, nil
}

func truncate(raw []byte, n int) string {
	if len(raw) > n {
		raw = raw[:n]
	}
	return string(raw)
}

// statusErr maps a non-2xx status to the taxonomy: 401/403 are
// authentication failures, everything else is a protocol error.
func (c *restClient) statusErr(op string, status int, raw []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Vendor: c.vendor, Msg: fmt.Sprintf("%s: HTTP %d", op, status)}
	}
	return &ProtocolError{
		Vendor:     c.vendor,
		Op:         op,
		StatusCode: status,
		Msg:        "unexpected status",
		Raw:        truncate(raw, 256),
	}
}
