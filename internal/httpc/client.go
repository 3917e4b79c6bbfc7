// Package httpc is a small client for a running linkcup server's REST API.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-linkcup/pkg/gateway"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client calls the linkcup API at a base URL.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for baseURL. A non-positive timeout uses
// DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DefaultConnectTimeout,
					KeepAlive: DefaultKeepAlive,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       DefaultIdleConnTimeout,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// Do sends body as JSON and decodes the response into out. Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Stats returns gateway statistics.
func (c *Client) Stats(ctx context.Context) (gateway.Stats, error) {
	var s gateway.Stats
	err := c.Do(ctx, http.MethodGet, "/api/devices/stats", nil, &s)
	return s, err
}

// Devices lists connected devices.
func (c *Client) Devices(ctx context.Context) ([]gateway.DeviceInfo, error) {
	var resp struct {
		Devices []gateway.DeviceInfo `json:"devices"`
	}
	err := c.Do(ctx, http.MethodGet, "/api/devices", nil, &resp)
	return resp.Devices, err
}

// SetAudience sets the audience flag.
func (c *Client) SetAudience(ctx context.Context, present bool) error {
	return c.Do(ctx, http.MethodPut, "/api/audience", map[string]bool{"present": present}, nil)
}

// SetPosition sets or clears (0) a device's position override.
func (c *Client) SetPosition(ctx context.Context, deviceID string, position int) error {
	return c.Do(ctx, http.MethodPost, "/api/devices/"+url.PathEscape(deviceID)+"/position",
		map[string]int{"position": position}, nil)
}

// TriggerClimax ends a device's session. It reports whether a session ended.
func (c *Client) TriggerClimax(ctx context.Context, deviceID string) (bool, error) {
	var resp struct {
		Ended bool `json:"ended"`
	}
	err := c.Do(ctx, http.MethodPost, "/api/devices/"+url.PathEscape(deviceID)+"/climax", nil, &resp)
	return resp.Ended, err
}
