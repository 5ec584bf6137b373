// Package rosmaster is a minimal client for the parameter server API of a
// ROS master. The master speaks XML-RPC; every reply is a triple of
// status code, status message and value.
package rosmaster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
)

const (
	DefaultCallerID = "/master_checker"

	statusSuccess = 1
)

var ErrInvalidURI = errors.New("invalid master URI")

// StatusError is returned when the master answers with a non-success code.
type StatusError struct {
	Method  string
	Code    int64
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: master returned code %d: %s", e.Method, e.Code, e.Message)
}

// Client queries the parameter server of a single master.
type Client struct {
	uri       string
	callerID  string
	timeout   time.Duration
	transport http.RoundTripper
}

// Dial validates masterURI and returns a client bound to it. No network
// traffic happens until the first call.
func Dial(masterURI, callerID string, timeout time.Duration) (*Client, error) {
	if err := ValidateURI(masterURI); err != nil {
		return nil, err
	}
	if callerID == "" {
		callerID = DefaultCallerID
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		uri:       masterURI,
		callerID:  callerID,
		timeout:   timeout,
		transport: http.DefaultTransport,
	}, nil
}

// ValidateURI requires an absolute URI with a scheme and a host.
func ValidateURI(masterURI string) error {
	parsed, err := url.Parse(strings.TrimSpace(masterURI))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURI, masterURI)
	}
	return nil
}

// WithTransport overrides the HTTP transport. Primarily useful for testing.
func (c *Client) WithTransport(transport http.RoundTripper) {
	if transport != nil {
		c.transport = transport
	}
}

func (c *Client) URI() string {
	return c.uri
}

func (c *Client) HasParam(ctx context.Context, key string) (bool, error) {
	value, err := c.call(ctx, "hasParam", GlobalName(key))
	if err != nil {
		return false, err
	}

	has, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("hasParam %s: unexpected value type %T", key, value)
	}
	return has, nil
}

// GetParam returns a string parameter. Non-string values are an error.
func (c *Client) GetParam(ctx context.Context, key string) (string, error) {
	value, err := c.call(ctx, "getParam", GlobalName(key))
	if err != nil {
		return "", err
	}

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("getParam %s: value is %T, not a string", key, value)
	}
	return s, nil
}

func (c *Client) call(ctx context.Context, method string, args ...any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rpc, err := xmlrpc.NewClient(c.uri, contextTransport{ctx: ctx, base: c.transport})
	if err != nil {
		return nil, fmt.Errorf("%s: create client: %w", method, err)
	}
	defer rpc.Close()

	params := make([]any, 0, len(args)+1)
	params = append(params, c.callerID)
	params = append(params, args...)

	var reply []any
	if err := rpc.Call(method, params, &reply); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", method, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	return unpack(method, reply)
}

func unpack(method string, reply []any) (any, error) {
	if len(reply) != 3 {
		return nil, fmt.Errorf("%s: malformed reply with %d elements", method, len(reply))
	}

	code, ok := toInt(reply[0])
	if !ok {
		return nil, fmt.Errorf("%s: malformed status code %v", method, reply[0])
	}
	if code != statusSuccess {
		msg, _ := reply[1].(string)
		return nil, &StatusError{Method: method, Code: code, Message: msg}
	}

	return reply[2], nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

// GlobalName resolves a relative graph name against the root namespace.
func GlobalName(key string) string {
	if strings.HasPrefix(key, "/") {
		return key
	}
	return "/" + key
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
