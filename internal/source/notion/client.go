// Package notion implements a document feed backed by the Notion API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kurakb/kura/internal/log"
)

const (
	// APIBase is the base URL for the Notion API.
	APIBase = "https://api.notion.com"
	// APIVersion is the API version header value.
	APIVersion = "2022-06-28"

	defaultHTTPTimeout = 30 * time.Second
)

// Client is a lightweight Notion API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL. Tests point this at a local server.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Notion API client. The token is the integration token
// (format "ntn_***") and must not be empty.
func NewClient(token string, logger log.Logger, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("notion token is required")
	}

	c := &Client{
		token:      token,
		baseURL:    APIBase,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search returns all pages accessible to the integration, handling pagination.
func (c *Client) Search(ctx context.Context, query string) ([]Page, error) {
	var allPages []Page
	startCursor := ""

	for {
		req := SearchRequest{
			Query: query,
			Filter: &SearchFilter{
				Property: "object",
				Value:    "page",
			},
			PageSize: 100, // Maximum allowed by the Notion API
		}
		if startCursor != "" {
			req.StartCursor = startCursor
		}

		var resp SearchResponse
		if err := c.makeRequest(ctx, http.MethodPost, c.baseURL+"/v1/search", req, &resp); err != nil {
			return allPages, fmt.Errorf("search: %w", err)
		}

		// Results mix pages and databases; keep pages only.
		for _, raw := range resp.Results {
			var objCheck struct {
				Object string `json:"object"`
			}
			if err := json.Unmarshal(raw, &objCheck); err != nil {
				c.logger.Warn("skipping unparseable search result", "error", err)
				continue
			}
			if objCheck.Object != "page" {
				continue
			}

			var page Page
			if err := json.Unmarshal(raw, &page); err != nil {
				c.logger.Warn("skipping unparseable page", "error", err)
				continue
			}
			allPages = append(allPages, page)
		}

		if !resp.HasMore {
			break
		}
		startCursor = resp.NextCursor
	}

	return allPages, nil
}

// GetBlockChildren retrieves all child blocks of a block (a page ID works),
// handling pagination and recursing into nested blocks.
func (c *Client) GetBlockChildren(ctx context.Context, blockID string) ([]Block, error) {
	var allBlocks []Block
	startCursor := ""

	for {
		url := fmt.Sprintf("%s/v1/blocks/%s/children", c.baseURL, blockID)
		if startCursor != "" {
			url += "?start_cursor=" + startCursor
		}

		var resp BlockChildrenResponse
		if err := c.makeRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
			return nil, fmt.Errorf("get block children: %w", err)
		}

		allBlocks = append(allBlocks, resp.Results...)

		if !resp.HasMore {
			break
		}
		startCursor = resp.NextCursor
	}

	var withChildren []Block
	for _, block := range allBlocks {
		withChildren = append(withChildren, block)

		if block.HasChildren {
			children, err := c.GetBlockChildren(ctx, block.ID)
			if err != nil {
				c.logger.Warn("failed to retrieve nested blocks",
					"block_id", block.ID,
					"error", err)
				continue
			}
			withChildren = append(withChildren, children...)
		}
	}

	return withChildren, nil
}

func (c *Client) makeRequest(ctx context.Context, method, url string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notion API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
