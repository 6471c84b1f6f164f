// Package sync implements the periodic delta-sync loop against the remote
// authority, grounded on original_source's gate-node/threads/sync.py
// SyncThread.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatenet/edge-node/pkg/dto"
)

// Client is the narrow HTTP client for the faces-sync and access-log
// endpoints.
type Client struct {
	baseURL    string
	orgID      string
	authToken  string
	httpClient *http.Client
}

// NewClient constructs a Client. authToken, if non-empty, is sent as a
// Bearer credential on every request.
func NewClient(baseURL, orgID, authToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		orgID:      orgID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// TokenExpiringSoon decodes the bearer JWT's exp claim (without verifying
// the signature — the node is a client, not the token's issuer) and
// reports whether it expires within `within`. Returns false if there is no
// token or it cannot be parsed.
func (c *Client) TokenExpiringSoon(within time.Duration) bool {
	if c.authToken == "" {
		return false
	}
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(c.authToken, jwt.MapClaims{})
	if err != nil {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < within
}

func (c *Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// FetchFaces calls GET /api/v1/faces/sync?org_id=...&since=... — since is
// omitted when empty, requesting a full sync (matches the reference
// implementation's first-boot behaviour).
func (c *Client) FetchFaces(ctx context.Context, since string) (*dto.FacesSyncResponse, error) {
	q := url.Values{}
	q.Set("org_id", c.orgID)
	if since != "" && since != "0" {
		q.Set("since", since)
	}

	u := fmt.Sprintf("%s/api/v1/faces/sync?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sync: build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sync: server returned status %d", resp.StatusCode)
	}

	var out dto.FacesSyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("sync: decode response: %w", err)
	}
	return &out, nil
}

// UploadLogs calls POST /api/v1/access-logs with a batch of entries.
func (c *Client) UploadLogs(ctx context.Context, entries []dto.AccessLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	body, err := json.Marshal(dto.AccessLogUploadRequest{Logs: entries})
	if err != nil {
		return fmt.Errorf("sync: marshal logs: %w", err)
	}

	u := c.baseURL + "/api/v1/access-logs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("sync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sync: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sync: server returned status %d", resp.StatusCode)
	}
	return nil
}
