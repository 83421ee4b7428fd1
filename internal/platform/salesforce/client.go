// Package salesforce is an outbound REST client for the Salesforce sobject
// and query APIs: single-record create, queryAll with nextRecordsUrl
// pagination, and JWT bearer authentication.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client talks to one Salesforce instance.
type Client struct {
	instanceURL string
	apiVersion  string
	tokens      TokenSource
	httpc       *http.Client
	limiter     *rate.Limiter
	logger      zerolog.Logger
}

// NewClient builds a client for the instance. rps bounds the request rate;
// zero or negative disables limiting.
func NewClient(instanceURL, apiVersion string, tokens TokenSource, rps float64, logger zerolog.Logger) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		apiVersion:  apiVersion,
		tokens:      tokens,
		httpc:       &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

type createResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Errors  []any  `json:"errors"`
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// Create inserts one record into objectType and returns the assigned ID.
func (c *Client) Create(ctx context.Context, objectType string, record map[string]any) (string, error) {
	if err := ValidateObjectType(objectType); err != nil {
		return "", err
	}

	body, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode %s record: %w", objectType, err)
	}

	endpoint := fmt.Sprintf("%s/services/data/v%s/sobjects/%s", c.instanceURL, c.apiVersion, objectType)
	resp, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", restError(objectType, resp)
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode %s create response: %w", objectType, err)
	}
	if !created.Success {
		return "", fmt.Errorf("create %s: rejected: %v", objectType, created.Errors)
	}
	return created.ID, nil
}

type queryResponse struct {
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

// QueryAll runs a SOQL query and follows nextRecordsUrl until the result
// set is complete.
func (c *Client) QueryAll(ctx context.Context, soql string) ([]map[string]any, error) {
	endpoint := fmt.Sprintf("%s/services/data/v%s/query?q=%s",
		c.instanceURL, c.apiVersion, url.QueryEscape(soql))

	var records []map[string]any
	for {
		resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			err := restError("query", resp)
			resp.Body.Close()
			return nil, err
		}

		var page queryResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode query response: %w", decodeErr)
		}

		records = append(records, page.Records...)
		if page.Done || page.NextRecordsURL == "" {
			break
		}
		endpoint = c.instanceURL + page.NextRecordsURL
	}
	c.logger.Debug().Int("records", len(records)).Msg("query complete")
	return records, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return resp, nil
}

// restError flattens the Salesforce error array into a single error value.
func restError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	var details []apiError
	if err := json.Unmarshal(body, &details); err == nil && len(details) > 0 {
		msgs := make([]string, 0, len(details))
		for _, d := range details {
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.ErrorCode, d.Message))
		}
		return fmt.Errorf("%s: status %d: %s", operation, resp.StatusCode, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%s: status %d: %s", operation, resp.StatusCode, body)
}
