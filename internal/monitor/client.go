package monitor

import (
	"net/url"
	"strings"

	"github.com/banshee-data/pulse.report/internal/httputil"
)

// Client drives a running instance's control surface.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient targets the server at base, e.g. "http://localhost:8090".
func NewClient(base string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

// Status fetches /api/status.
func (c *Client) Status() (StatusResponse, error) {
	var out StatusResponse
	resp, err := c.http.Get(c.base + "/api/status")
	if err != nil {
		return out, err
	}
	return out, httputil.DecodeJSON(resp, &out)
}

// Toggle starts recording under dir, or stops it.
func (c *Client) Toggle(dir string) (StatusResponse, error) {
	var out StatusResponse
	target := c.base + "/api/recording/toggle"
	if dir != "" {
		target += "?dir=" + url.QueryEscape(dir)
	}
	resp, err := c.http.Post(target, "application/json", nil)
	if err != nil {
		return out, err
	}
	return out, httputil.DecodeJSON(resp, &out)
}

// Extract saves one sample into the current or last session.
func (c *Client) Extract() (ExtractResponse, error) {
	var out ExtractResponse
	resp, err := c.http.Post(c.base+"/api/recording/extract", "application/json", nil)
	if err != nil {
		return out, err
	}
	return out, httputil.DecodeJSON(resp, &out)
}

// Exit asks the instance to stop recording and shut down.
func (c *Client) Exit() (StatusResponse, error) {
	var out StatusResponse
	resp, err := c.http.Post(c.base+"/api/exit", "application/json", nil)
	if err != nil {
		return out, err
	}
	return out, httputil.DecodeJSON(resp, &out)
}
