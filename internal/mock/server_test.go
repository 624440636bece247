package mock

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, config *Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(config, t.TempDir(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_AlternatingStatuses(t *testing.T) {
	s, ts := newTestServer(t, DefaultConfig(true))

	var got []int
	for range 6 {
		status, body := get(t, ts.URL+"/api/robots")
		assert.Equal(t, "OK", body)
		got = append(got, status)
	}

	assert.Equal(t, []int{200, 500, 200, 500, 200, 500}, got)
	assert.Equal(t, int64(6), s.Served())
	assert.Equal(t, map[int]int64{200: 3, 500: 3}, s.StatusCounts())
}

func TestServer_CyclingUnderConcurrency(t *testing.T) {
	config := &Config{Routes: []Route{{Method: "GET", Path: "/", Statuses: []int{200, 503, 404}}}}
	s, ts := newTestServer(t, config)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 30 {
				resp, err := http.Get(ts.URL + "/")
				if err != nil {
					t.Error(err)
					return
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, map[int]int64{200: 100, 503: 100, 404: 100}, s.StatusCounts())
}

func TestServer_DefaultConfigAlwaysOK(t *testing.T) {
	_, ts := newTestServer(t, DefaultConfig(false))

	for _, path := range []string{"/", "/api/robots", "/api/alive"} {
		status, _ := get(t, ts.URL+path)
		assert.Equal(t, http.StatusOK, status, path)
	}
}

func TestServer_RouteMatching(t *testing.T) {
	config := &Config{Routes: []Route{
		{Name: "exact", Method: "GET", Path: "/api/alive", Status: 204},
		{Name: "regex", Method: "get", Path: `^/api/robots/\d+$`, PathType: "regex", Status: 200, Body: "robot"},
		{Name: "prefix", Method: "GET", Path: "/static/", PathType: "prefix", Status: 302, Headers: map[string]string{"Location": "/"}},
	}}
	_, ts := newTestServer(t, config)

	status, _ := get(t, ts.URL+"/api/alive")
	assert.Equal(t, 204, status)

	status, body := get(t, ts.URL+"/api/robots/42")
	assert.Equal(t, 200, status)
	assert.Equal(t, "robot", body)

	status, body = get(t, ts.URL+"/api/robots/abc")
	assert.Equal(t, 404, status)
	assert.Contains(t, body, "No route configured for GET /api/robots/abc")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(ts.URL + "/static/app.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = http.Post(ts.URL+"/api/alive", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestServer_BodyFileAndDelay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "robots.json"), []byte(`[{"id":1}]`), 0644))

	config := &Config{Routes: []Route{
		{Method: "GET", Path: "/robots", BodyFile: "robots.json", Delay: 30},
		{Method: "GET", Path: "/missing", BodyFile: "nope.json"},
	}}
	s, err := NewServer(config, dir, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	start := time.Now()
	status, body := get(t, ts.URL+"/robots")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `[{"id":1}]`, body)

	status, _ = get(t, ts.URL+"/missing")
	assert.Equal(t, 500, status)
}

func TestNewServer_Defaults(t *testing.T) {
	s, err := NewServer(&Config{Routes: []Route{{Method: "GET", Path: "/"}}}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", s.GetAddress())
}

func TestNewServer_InvalidConfig(t *testing.T) {
	_, err := NewServer(&Config{}, "", nil)
	assert.Error(t, err)
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	s, err := NewServer(DefaultConfig(true), "", nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	status, _ := get(t, "http://"+ln.Addr().String()+"/")
	assert.Equal(t, 200, status)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
