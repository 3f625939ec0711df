package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client talks to the identity provider's admin API over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type deleteRequest struct {
	UserIDs []string `json:"userIds"`
}

type deleteResponse struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed"`
}

// NewClient creates an identity provider client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// DeleteAccounts asks the provider to remove credentials for the given IDs.
func (c *Client) DeleteAccounts(ctx context.Context, ids []string) (*Result, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("identity delete request error: client is nil")
	}
	if strings.TrimSpace(c.baseURL) == "" {
		return nil, fmt.Errorf("identity delete config error: base_url is empty")
	}
	if len(ids) == 0 {
		return &Result{Deleted: nil, Failed: map[string]string{}}, nil
	}

	payload, err := json.Marshal(deleteRequest{UserIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("identity delete request error: %w", err)
	}

	url := c.baseURL + "/admin/accounts/delete"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("identity delete request error: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity delete request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("identity delete http error: status=%d body=<failed to read body: %v>", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("identity delete http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out deleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("identity delete response error: %w", err)
	}
	if out.Failed == nil {
		out.Failed = map[string]string{}
	}

	return &Result{Deleted: out.Deleted, Failed: out.Failed}, nil
}
