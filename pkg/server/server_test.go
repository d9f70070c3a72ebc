package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/coordinator"
	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/stream"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

type staticProvider struct{ text string }

func (p *staticProvider) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	return &llms.Response{
		Message:    llms.TextMessage(llms.RoleAssistant, p.text),
		StopReason: llms.StopEndTurn,
	}, nil
}

func (p *staticProvider) ModelName() string { return "static" }

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Model:     "test",
		MaxRounds: 3,
		MaxTokens: 512,
	}
	coord := coordinator.New(cfg, &staticProvider{text: "final answer"}, tools.NewRegistry(), nil)
	return New(cfg, coord, stream.NewBroker())
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(testServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	srv := httptest.NewServer(testServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestQueryValidation(t *testing.T) {
	srv := httptest.NewServer(testServer(t).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestStreamUnknownTurn(t *testing.T) {
	srv := httptest.NewServer(testServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stream/nonexistent")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueryThenStream(t *testing.T) {
	srv := httptest.NewServer(testServer(t).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/query", "application/json",
		strings.NewReader(`{"query": "what is TP53?"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	require.NotEmpty(t, started.TurnID)

	streamResp, err := http.Get(srv.URL + "/api/stream/" + started.TurnID)
	require.NoError(t, err)
	defer func() { _ = streamResp.Body.Close() }()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	assert.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	var types []string
	dataByEvent := map[string]map[string]any{}
	var current string
	scanner := bufio.NewScanner(streamResp.Body)
	deadline := time.After(5 * time.Second)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

read:
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for terminal event")
		case line, ok := <-lines:
			if !ok {
				break read
			}
			if strings.HasPrefix(line, "event: ") {
				current = strings.TrimPrefix(line, "event: ")
				types = append(types, current)
			}
			if strings.HasPrefix(line, "data: ") {
				var m map[string]any
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
				dataByEvent[current] = m
			}
		}
	}

	require.NotEmpty(t, types)
	assert.Contains(t, types, "text_delta")
	assert.Equal(t, "done", types[len(types)-1])

	// The data object carries the payload fields at the top level.
	require.Contains(t, dataByEvent, "text_delta")
	assert.Equal(t, "final answer", dataByEvent["text_delta"]["delta"])
	require.Contains(t, dataByEvent, "done")
	assert.Contains(t, dataByEvent["done"], "execution_time")
	assert.Contains(t, dataByEvent["done"], "tools_used")
	assert.NotContains(t, dataByEvent["done"], "payload")
}

func TestWriteSSEFrameShape(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, writeSSE(rec, stream.Thinking("routing to stats")))
	require.NoError(t, writeSSE(rec, stream.ToolResult("search_literature", "3 papers", 2*time.Second)))
	require.NoError(t, writeSSE(rec, stream.Disconnect()))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, 3)

	decode := func(frame string) (string, map[string]any) {
		t.Helper()
		parts := strings.SplitN(frame, "\n", 2)
		require.Len(t, parts, 2)
		require.True(t, strings.HasPrefix(parts[0], "event: "))
		require.True(t, strings.HasPrefix(parts[1], "data: "))
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(parts[1], "data: ")), &m))
		return strings.TrimPrefix(parts[0], "event: "), m
	}

	name, m := decode(frames[0])
	assert.Equal(t, "thinking", name)
	assert.Equal(t, "routing to stats", m["content"])
	assert.NotContains(t, m, "payload")

	name, m = decode(frames[1])
	assert.Equal(t, "tool_result", name)
	assert.Equal(t, "search_literature", m["tool"])
	assert.Equal(t, "3 papers", m["output"])
	assert.InDelta(t, 2.0, m["execution_time"], 0.001)

	name, m = decode(frames[2])
	assert.Equal(t, "disconnect", name)
	assert.Empty(t, m)
}
