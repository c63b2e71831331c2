// Package wfs fetches GeoJSON features from a GeoServer WFS endpoint.
package wfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// Config describes one WFS feature type to fetch.
type Config struct {
	// BaseURL is the OWS endpoint, e.g. http://localhost:8080/geoserver/land_matrix/ows.
	BaseURL     string
	TypeName    string
	MaxFeatures int // 0 = no limit
	Timeout     time.Duration
	MaxRetries  uint64
	RetryDelay  time.Duration
}

// Client fetches features over WFS 1.0.0 as application/json.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a client. A nil httpClient uses one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// FeatureURL builds the GetFeature request URL.
func (c *Client) FeatureURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing WFS url: %w", err)
	}
	q := u.Query()
	q.Set("service", "WFS")
	q.Set("version", "1.0.0")
	q.Set("request", "GetFeature")
	q.Set("typeName", c.cfg.TypeName)
	q.Set("outputFormat", "application/json")
	if c.cfg.MaxFeatures > 0 {
		q.Set("maxFeatures", strconv.Itoa(c.cfg.MaxFeatures))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchFeatures downloads the feature collection, retrying transport errors
// and 5xx responses with a constant backoff. 4xx responses are not retried.
func (c *Client) FetchFeatures(ctx context.Context) (*geojson.FeatureCollection, error) {
	target, err := c.FeatureURL()
	if err != nil {
		return nil, err
	}

	var body []byte
	attempt := 0
	err = backoff.Retry(
		func() error {
			attempt++
			b, err := c.get(ctx, target)
			if err != nil {
				c.logger.Warn("WFS request failed",
					zap.String("type_name", c.cfg.TypeName),
					zap.Int("attempt", attempt),
					zap.Error(err))
				return err
			}
			body = b
			return nil
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), c.cfg.MaxRetries),
			ctx,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", c.cfg.TypeName, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", c.cfg.TypeName, err)
	}
	c.logger.Info("fetched WFS features",
		zap.String("type_name", c.cfg.TypeName),
		zap.Int("features", len(fc.Features)))
	return fc, nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code error: %d %s", e.Code, e.Status)
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode < 500 {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return b, nil
}
