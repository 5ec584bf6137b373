package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ozzus/robot-agent/internal/domain"
)

type Action string

const (
	ActionGetState   Action = "GET_STATE"
	ActionStartRobot Action = "START_ROBOT"
	ActionStopRobot  Action = "STOP_ROBOT"
)

var (
	// ErrUnreachable means no page could be read from the endpoint.
	ErrUnreachable = errors.New("control endpoint unreachable")
	// ErrNoState means a page was read but it carried no status tag.
	ErrNoState = errors.New("control page has no robot state")
)

const maxPageSize = 1 << 20

// Client talks to the control page of a robot.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient overrides the default http.Client. Primarily useful for testing.
func (c *Client) WithHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// FetchState reads the page for GET_STATE and parses it.
func (c *Client) FetchState(ctx context.Context, controlURI string) (domain.RobotState, error) {
	page, err := c.Page(ctx, controlURI, ActionGetState)
	if err != nil {
		return domain.RobotState{Status: domain.RobotStatusUnknown}, err
	}

	state := ParseState(page)
	if state.ParseError {
		return state, ErrNoState
	}

	return state, nil
}

// Send issues an action and discards the returned page.
func (c *Client) Send(ctx context.Context, controlURI string, action Action) error {
	_, err := c.Page(ctx, controlURI, action)
	return err
}

// Page requests controlURI with the given action and returns the body.
func (c *Client) Page(ctx context.Context, controlURI string, action Action) (string, error) {
	target, err := actionURL(controlURI, action)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: unexpected status %d", ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("%w: read page: %v", ErrUnreachable, err)
	}

	return string(body), nil
}

func actionURL(controlURI string, action Action) (string, error) {
	trimmed := strings.TrimSpace(controlURI)
	if trimmed == "" {
		return "", errors.New("empty control URI")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid control URI: %s", controlURI)
	}

	query := parsed.Query()
	query.Set("action", string(action))
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
