package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
)

var ErrNotRegistered = errors.New("agent is not registered")

// Client talks to the fleet backend that tracks acquisition agents.
type Client struct {
	baseURL    string
	httpClient *http.Client
	agentName  string

	mu         sync.RWMutex
	agentToken string
}

// NewClient constructs a backend client that authenticates using Basic Auth.
// An empty token is allowed; Register obtains one.
func NewClient(baseURL, agentName, agentToken string) (*Client, error) {
	normalizedURL, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	if agentName == "" {
		return nil, errors.New("agent name is required")
	}

	return &Client{
		baseURL: normalizedURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		agentName:  agentName,
		agentToken: agentToken,
	}, nil
}

// WithHTTPClient overrides the default http.Client. Primarily useful for testing.
func (c *Client) WithHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

func (c *Client) Registered() bool {
	return c.token() != ""
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentToken
}

// Register announces the agent and stores the token the backend issues.
func (c *Client) Register(ctx context.Context, site string, capabilities []domain.TaskType) (string, error) {
	body, err := json.Marshal(domain.AgentRegistrationRequest{
		AgentName:    c.agentName,
		Site:         site,
		Capabilities: capabilities,
	})
	if err != nil {
		return "", fmt.Errorf("encode registration: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/agents/register", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var payload domain.AgentRegistrationResponse
	if err := c.do(req, &payload); err != nil {
		return "", err
	}

	if payload.Token == "" {
		return "", errors.New("register response did not contain token")
	}

	c.mu.Lock()
	c.agentToken = payload.Token
	c.mu.Unlock()

	return payload.Token, nil
}

// Heartbeat reports the agent status to the backend.
func (c *Client) Heartbeat(ctx context.Context, status domain.AgentStatus) error {
	if !c.Registered() {
		return ErrNotRegistered
	}

	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/agents/heartbeat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

// RunHeartbeat sends a heartbeat every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (c *Client) RunHeartbeat(ctx context.Context, interval time.Duration, status func() domain.AgentStatus, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Heartbeat(ctx, status()); err != nil && ctx.Err() == nil {
				log.Warn("heartbeat failed", sl.Err(err))
			}
		}
	}
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("backend base URL is required")
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid backend base URL: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid backend base URL: %s", raw)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return strings.TrimSuffix(parsed.String(), "/"), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if token := c.token(); token != "" {
		req.SetBasicAuth(c.agentName, token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return fmt.Errorf("execute request: network error contacting %s: %w", req.URL.Hostname(), err)
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
