package rosmaster

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type methodCall struct {
	Method string `xml:"methodName"`
	Params []struct {
		Value struct {
			String string `xml:"string"`
		} `xml:"value"`
	} `xml:"params>param"`
}

// fakeMaster serves the hasParam/getParam subset of the parameter server.
type fakeMaster struct {
	mu     sync.Mutex
	params map[string]string
	calls  []string
	caller string
}

func (m *fakeMaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var call methodCall
	if err := xml.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call.Method)
	m.caller = call.Params[0].Value.String
	key := call.Params[1].Value.String
	value, ok := m.params[key]

	switch call.Method {
	case "hasParam":
		flag := 0
		if ok {
			flag = 1
		}
		writeReply(w, 1, key, fmt.Sprintf("<boolean>%d</boolean>", flag))
	case "getParam":
		if !ok {
			writeReply(w, -1, "Parameter ["+key+"] is not set", "<int>0</int>")
			return
		}
		if value == "<int>" {
			writeReply(w, 1, key, "<int>42</int>")
			return
		}
		writeReply(w, 1, key, "<string>"+value+"</string>")
	default:
		writeReply(w, -1, "unknown method", "<int>0</int>")
	}
}

func writeReply(w http.ResponseWriter, code int, msg, value string) {
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0"?><methodResponse><params><param><value><array><data>`+
		`<value><int>%d</int></value><value><string>%s</string></value><value>%s</value>`+
		`</data></array></value></param></params></methodResponse>`, code, msg, value)
}

func newFakeMaster(t *testing.T, params map[string]string) (*fakeMaster, *Client) {
	t.Helper()

	m := &fakeMaster{params: params}
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)

	c, err := Dial(srv.URL+"/", "", time.Second)
	require.NoError(t, err)
	return m, c
}

func TestClientHasAndGetParam(t *testing.T) {
	m, c := newFakeMaster(t, map[string]string{
		"/robot/name": "pr1012",
		"/robot/type": "pr2",
	})
	ctx := context.Background()

	has, err := c.HasParam(ctx, "robot/name")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = c.HasParam(ctx, "robot/color")
	require.NoError(t, err)
	assert.False(t, has)

	name, err := c.GetParam(ctx, "robot/name")
	require.NoError(t, err)
	assert.Equal(t, "pr1012", name)

	assert.Equal(t, []string{"hasParam", "hasParam", "getParam"}, m.calls)
	assert.Equal(t, DefaultCallerID, m.caller)
}

func TestClientGetParamStatusError(t *testing.T) {
	_, c := newFakeMaster(t, map[string]string{})

	_, err := c.GetParam(context.Background(), "robot/name")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, int64(-1), statusErr.Code)
	assert.Contains(t, statusErr.Message, "/robot/name")
}

func TestClientGetParamNotString(t *testing.T) {
	_, c := newFakeMaster(t, map[string]string{"/robot/type": "<int>"})

	_, err := c.GetParam(context.Background(), "/robot/type")
	assert.ErrorContains(t, err, "not a string")
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := Dial(addr, "", time.Second)
	require.NoError(t, err)

	_, err = c.HasParam(context.Background(), "robot/name")
	assert.Error(t, err)
}

func TestClientCallTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c, err := Dial(srv.URL, "", 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.HasParam(context.Background(), "robot/name")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestValidateURI(t *testing.T) {
	assert.NoError(t, ValidateURI("http://pr2:11311/"))
	assert.ErrorIs(t, ValidateURI("pr2:11311"), ErrInvalidURI)
	assert.ErrorIs(t, ValidateURI("://bad"), ErrInvalidURI)
	assert.ErrorIs(t, ValidateURI(""), ErrInvalidURI)
}

func TestGlobalName(t *testing.T) {
	assert.Equal(t, "/robot/name", GlobalName("robot/name"))
	assert.Equal(t, "/robot/type", GlobalName("/robot/type"))
}
