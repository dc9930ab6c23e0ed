package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/bidshelf/internal/shared"
	"golang.org/x/oauth2"
)

const DefaultGraphQLURL = "https://openneuro.org/crn/graphql"

const latestSnapshotQuery = `query dataset($id: ID!) {
  dataset(id: $id) {
    id
    latestSnapshot {
      tag
      created
    }
  }
}`

// OpenNeuroClient queries the OpenNeuro GraphQL API.
type OpenNeuroClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewOpenNeuroClient creates a client for endpoint (default [DefaultGraphQLURL]).
//
// A non-empty apiKey is attached as a bearer token. A nil base client means [http.DefaultClient].
func NewOpenNeuroClient(ctx context.Context, endpoint, apiKey string, base *http.Client) *OpenNeuroClient {
	if endpoint == "" {
		endpoint = DefaultGraphQLURL
	}
	if base == nil {
		base = http.DefaultClient
	}

	client := base
	if apiKey != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"}))
	}

	return &OpenNeuroClient{endpoint: endpoint, httpClient: client}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// Snapshot is a published version of an OpenNeuro dataset.
type Snapshot struct {
	Tag     string `json:"tag"`
	Created string `json:"created"`
}

type datasetResponse struct {
	Data struct {
		Dataset *struct {
			ID             string    `json:"id"`
			LatestSnapshot *Snapshot `json:"latestSnapshot"`
		} `json:"dataset"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// LatestSnapshot returns the tag of the newest snapshot of databaseID.
func (c *OpenNeuroClient) LatestSnapshot(ctx context.Context, databaseID string) (string, error) {
	var resp datasetResponse
	if err := c.do(ctx, latestSnapshotQuery, map[string]any{"id": databaseID}, &resp); err != nil {
		return "", err
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		joined := strings.Join(msgs, "; ")
		if strings.Contains(strings.ToLower(joined), "not found") {
			return "", fmt.Errorf("%w: dataset %s: %s", shared.ErrNotFound, databaseID, joined)
		}
		return "", fmt.Errorf("%w: %s", shared.ErrAPIRequest, joined)
	}

	ds := resp.Data.Dataset
	if ds == nil {
		return "", fmt.Errorf("%w: dataset %s", shared.ErrNotFound, databaseID)
	}
	if ds.LatestSnapshot == nil || ds.LatestSnapshot.Tag == "" {
		return "", fmt.Errorf("%w: dataset %s has no snapshots", shared.ErrNotFound, databaseID)
	}
	return ds.LatestSnapshot.Tag, nil
}

// do posts a GraphQL query and decodes the response into result.
func (c *OpenNeuroClient) do(ctx context.Context, query string, vars map[string]any, result any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: openneuro status %d: %s", shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}
