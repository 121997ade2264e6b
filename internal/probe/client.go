package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiClient is a minimal client for the DriftWatch watch API. It
// exchanges the API key for a bearer token lazily and re-authenticates
// once when a request comes back 401.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	token   string
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// monitorInfo is the subset of the server's monitor view the probe uses.
type monitorInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ingestResult is the subset of the server's ingest response the probe uses.
type ingestResult struct {
	Accepted         int `json:"accepted"`
	WindowsCompleted int `json:"windows_completed"`
	State            struct {
		ConsecutiveViolations int  `json:"consecutive_violations"`
		Drift                 bool `json:"drift"`
	} `json:"state"`
}

func (c *apiClient) authenticate(ctx context.Context) error {
	if c.apiKey == "" {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"api_key": c.apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token exchange: status %d", resp.StatusCode)
	}

	var tr struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	c.token = tr.Token
	return nil
}

func (c *apiClient) createMonitor(ctx context.Context, name, metric string, baseline []float64) (*monitorInfo, error) {
	payload := map[string]any{"name": name, "metric": metric, "baseline": baseline}
	var info monitorInfo
	if err := c.post(ctx, "/api/v1/watch/monitors", payload, http.StatusCreated, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *apiClient) sendObservations(ctx context.Context, monitorID string, values []float64) (*ingestResult, error) {
	payload := map[string]any{"values": values}
	var res ingestResult
	path := "/api/v1/watch/monitors/" + monitorID + "/observations"
	if err := c.post(ctx, path, payload, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// post sends a JSON request, re-authenticating once on 401.
func (c *apiClient) post(ctx context.Context, path string, payload any, wantStatus int, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if c.token == "" && c.apiKey != "" {
			if err := c.authenticate(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("POST %s: %w", path, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && c.apiKey != "" && attempt == 0 {
			// Token expired: drop it and retry with a fresh one.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.token = ""
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != wantStatus {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, string(detail))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("POST %s: unauthorized after re-authentication", path)
}
