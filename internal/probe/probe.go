// Package probe queries the metadata endpoint the provisioned application
// serves on each instance.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"

	"github.com/hemantobora/cloudcheck/internal/log"
	"github.com/hemantobora/cloudcheck/internal/models"
)

// DefaultPort is where the application listens on every instance
const DefaultPort = 80

// maxBody caps how much of a response is read
const maxBody = 1 << 20

// Client fetches InstanceMetadata from instance endpoints
type Client struct {
	http    *http.Client
	port    int
	timeout *time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default cleanhttp client. The client is not
// modified; a nil client keeps the default.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Client) { p.http = c }
}

// WithPort overrides DefaultPort
func WithPort(port int) Option {
	return func(p *Client) { p.port = port }
}

// WithTimeout bounds each request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(p *Client) { p.timeout = &d }
}

// NewClient returns a Client on a non-shared cleanhttp client
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: cleanhttp.DefaultClient(),
		port: DefaultPort,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = cleanhttp.DefaultClient()
	}
	if c.timeout != nil {
		hc := *c.http
		hc.Timeout = *c.timeout
		c.http = &hc
	}
	return c
}

// Fetch issues GET http://address:port/ and decodes the placement fields.
// The payload is untrusted: it must be a JSON object, unknown fields are
// ignored and missing fields decode as "".
func (c *Client) Fetch(ctx context.Context, address string) (models.InstanceMetadata, error) {
	if address == "" {
		return models.InstanceMetadata{}, &models.ProbeError{Cause: errors.New("instance has no address")}
	}
	url := "http://" + net.JoinHostPort(address, strconv.Itoa(c.port)) + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.InstanceMetadata{}, &models.ProbeError{URL: url, Cause: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return models.InstanceMetadata{}, &models.ProbeError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return models.InstanceMetadata{}, &models.ProbeError{URL: url, StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.InstanceMetadata{}, &models.ProbeError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	log.Debugf("probe %s: %d byte(s)", url, len(body))
	return Decode(body)
}

// Decode extracts InstanceMetadata from an endpoint payload
func Decode(body []byte) (models.InstanceMetadata, error) {
	if !gjson.ValidBytes(body) {
		return models.InstanceMetadata{}, &models.ProbeError{Cause: errors.New("response is not valid JSON")}
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return models.InstanceMetadata{}, &models.ProbeError{Cause: fmt.Errorf("response is a JSON %s, not an object", doc.Type)}
	}
	return models.InstanceMetadata{
		AvailabilityZone: doc.Get("availability_zone").String(),
		Region:           doc.Get("region").String(),
		PrivateIPv4:      doc.Get("private_ipv4").String(),
	}, nil
}
