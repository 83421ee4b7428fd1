// Package ehr is an outbound client for a FHIR R4 REST server. It exposes
// the small read/create surface the sync pipeline consumes: searches with
// bundle-link pagination flattened into one slice, single-resource reads,
// and resource creation.
package ehr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const fhirContentType = "application/fhir+json"

// Client talks to one FHIR base URL. All calls honor the shared rate
// limiter; public HAPI servers throttle aggressively.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient builds a client for baseURL, limited to rps requests per
// second. A zero or negative rps disables limiting.
func NewClient(baseURL string, rps float64, logger zerolog.Logger) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// bundle is the subset of a FHIR searchset bundle the client reads.
type bundle struct {
	Entry []struct {
		Resource map[string]any `json:"resource"`
	} `json:"entry"`
	Link []struct {
		Relation string `json:"relation"`
		URL      string `json:"url"`
	} `json:"link"`
}

// FetchAll searches resourceType and follows next links until the bundle
// chain ends, returning the unwrapped resource of every entry.
func (c *Client) FetchAll(ctx context.Context, resourceType string, query url.Values) ([]map[string]any, error) {
	next := c.baseURL + "/" + resourceType
	if len(query) > 0 {
		next += "?" + query.Encode()
	}

	var resources []map[string]any
	for next != "" {
		var page bundle
		if err := c.get(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("search %s: %w", resourceType, err)
		}
		for _, entry := range page.Entry {
			resources = append(resources, entry.Resource)
		}

		next = ""
		for _, link := range page.Link {
			if link.Relation == "next" {
				next = link.URL
				break
			}
		}
	}
	c.logger.Debug().Str("resource_type", resourceType).Int("count", len(resources)).
		Msg("fetched resources")
	return resources, nil
}

// FetchByID reads a single resource.
func (c *Client) FetchByID(ctx context.Context, resourceType, id string) (map[string]any, error) {
	var resource map[string]any
	if err := c.get(ctx, c.baseURL+"/"+resourceType+"/"+id, &resource); err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", resourceType, id, err)
	}
	return resource, nil
}

// CreateResource posts a new resource and returns the server's
// representation of it, including the assigned id.
func (c *Client) CreateResource(ctx context.Context, resourceType string, payload map[string]any) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", resourceType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+resourceType, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", fhirContentType)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", resourceType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError(resp)
	}

	var created map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode created %s: %w", resourceType, err)
	}
	return created, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", fhirContentType)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: status %d: %s", resp.Request.Method, resp.Request.URL, resp.StatusCode, body)
}
