package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": 7}`)
	}))
	defer srv.Close()

	var out struct {
		Value int `json:"value"`
	}
	c := New()
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, &out))
	assert.Equal(t, 7, out.Value)
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond))
	body, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPermanentStatusDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond))
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(1), WithBaseDelay(time.Millisecond))
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "after 1 retries")
}

func TestMinIntervalSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	interval := 50 * time.Millisecond
	c := New(WithMinInterval(interval))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL, nil)
		require.NoError(t, err)
	}
	// First request is admitted immediately; the next two wait.
	assert.GreaterOrEqual(t, time.Since(start), 2*interval-5*time.Millisecond)
}

func TestContextCancellationStopsWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := New(WithMinInterval(10 * time.Second))
	_, err := c.Get(context.Background(), srv.URL, nil) // consumes the first token
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, srv.URL, nil)
	require.Error(t, err)
}

func TestHeadersAndUserAgent(t *testing.T) {
	var gotUA, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("X-API-Key")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := New(WithUserAgent("bioagent/1.0"), WithHeader("X-API-Key", "secret"))
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "bioagent/1.0", gotUA)
	assert.Equal(t, "secret", gotKey)
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "http://x/y", BuildURL("http://x/y", nil))

	u := BuildURL("http://x/y", url.Values{"q": {"tp53 cancer"}, "n": {"5"}})
	assert.Contains(t, u, "q=tp53+cancer")
	assert.Contains(t, u, "n=5")
}
