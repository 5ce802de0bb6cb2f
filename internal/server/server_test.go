package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/store"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs int
	// when set, Run signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context) (*suite.Summary, error) {
	if f.release != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return &suite.Summary{
		Started: time.Date(2026, 10, 19, 8, f.runs, 0, 0, time.UTC),
		NPasses: 1,
		Kernels: []suite.KernelSummary{{
			Name:  "Basic_TRAP_INT",
			Valid: true,
			Rows: []suite.Row{{
				Variant: "Base_Seq", Tuning: "default", Status: kernel.StatusOK,
				Checksum: 1.76, AvgTime: time.Millisecond,
			}},
		}},
	}, nil
}

func newServer(t *testing.T, runner Runner) *httptest.Server {
	t.Helper()
	st, err := store.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ts := httptest.NewServer(New(":0", runner, st, zaptest.NewLogger(t)).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer(t *testing.T) {
	ts := newServer(t, &fakeRunner{})

	resp, _ := get(t, ts.URL+"/results")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, body := get(t, ts.URL+"/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", body)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/run", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body = get(t, ts.URL+"/results")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var sum suite.Summary
	require.NoError(t, json.Unmarshal([]byte(body), &sum))
	assert.Equal(t, 2, sum.Started.Minute())

	_, body = get(t, ts.URL+"/runs")
	var entries []store.Entry
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	require.Len(t, entries, 2)

	resp, body = get(t, ts.URL+"/results?id="+entries[0].ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &sum))
	assert.Equal(t, 1, sum.Started.Minute())

	resp, _ = get(t, ts.URL+"/results?id=nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get(t, ts.URL+"/chart")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Basic_TRAP_INT")

	resp, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `perfsuite_endpoint_responses_total{endpoint="/results",status_code="404"}`)

	resp, _ = get(t, ts.URL+"/run")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_OneRunAtATime(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	ts := newServer(t, runner)

	first := make(chan int)
	go func() {
		resp, err := http.Post(ts.URL+"/run", "", nil)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	<-runner.started
	resp, err := http.Post(ts.URL+"/run", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(runner.release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestServer_StartStop(t *testing.T) {
	st, err := store.Open("", nil)
	require.NoError(t, err)
	defer st.Close()
	s := New("127.0.0.1:0", &fakeRunner{}, st, nil)
	require.NoError(t, s.Start())
	assert.NotEqual(t, "127.0.0.1:0", s.Addr())

	resp, _ := get(t, "http://"+s.Addr()+"/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, s.Stop(context.Background()))
}
