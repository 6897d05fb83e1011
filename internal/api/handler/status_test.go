package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontier-design/projectory-web-to-print/internal/progress"
)

func statusServer(t *testing.T, reg progress.Registry, heartbeat time.Duration) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/status/{jobId}", NewStatusHandler(reg, heartbeat))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func openStream(t *testing.T, ctx context.Context, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

// readFrame returns the next SSE frame without its trailing blank line.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return strings.Join(lines, "\n")
		}
		lines = append(lines, line)
	}
}

func frameData(t *testing.T, frame string) map[string]any {
	t.Helper()
	require.True(t, strings.HasPrefix(frame, "data: "), frame)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &v))
	return v
}

func TestStatus_InvalidJobID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/status/{jobId}", NewStatusHandler(progress.NewMemoryRegistry(), time.Second))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/-bad!id", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid jobId format", decodeBody(t, rec)["error"])
}

func TestStatus_StreamsEventsUntilJobEnds(t *testing.T) {
	reg := progress.NewMemoryRegistry()
	srv := statusServer(t, reg, 50*time.Millisecond)

	resp, r := openStream(t, context.Background(), srv.URL+"/status/"+testJobID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	connected := frameData(t, readFrame(t, r))
	assert.Equal(t, map[string]any{"type": "connected", "jobId": testJobID}, connected)

	require.Eventually(t, func() bool { return reg.HasSubscriber(testJobID) }, 2*time.Second, 5*time.Millisecond)

	require.True(t, reg.Emit(testJobID, progress.EventBatchStart, "Processing batch 1 of 2 (12 items)...", map[string]any{
		"batchNumber": 1, "totalBatches": 2, "itemsInBatch": 12,
	}))
	require.True(t, reg.Emit(testJobID, progress.EventComplete, "PDFs generated: 2 successful, 0 failed", nil))
	reg.Unregister(testJobID)

	var got []map[string]any
	for len(got) < 2 {
		frame := readFrame(t, r)
		if strings.HasPrefix(frame, ":") {
			continue
		}
		got = append(got, frameData(t, frame))
	}
	assert.Equal(t, "batch-start", got[0]["type"])
	assert.Equal(t, float64(1), got[0]["batchNumber"])
	assert.NotEmpty(t, got[0]["timestamp"])
	assert.Equal(t, "complete", got[1]["type"])

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NotContains(t, string(rest), "data:")
}

func TestStatus_Heartbeat(t *testing.T) {
	reg := progress.NewMemoryRegistry()
	srv := statusServer(t, reg, 20*time.Millisecond)

	_, r := openStream(t, context.Background(), srv.URL+"/status/"+testJobID)
	readFrame(t, r)

	assert.Equal(t, ": heartbeat", readFrame(t, r))
}

func TestStatus_DisconnectDetaches(t *testing.T) {
	reg := progress.NewMemoryRegistry()
	srv := statusServer(t, reg, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	_, r := openStream(t, ctx, srv.URL+"/status/"+testJobID)
	readFrame(t, r)
	require.Eventually(t, func() bool { return reg.HasSubscriber(testJobID) }, 2*time.Second, 5*time.Millisecond)

	cancel()

	assert.Eventually(t, func() bool { return !reg.HasSubscriber(testJobID) }, 2*time.Second, 5*time.Millisecond)
}

func TestStatus_ReplacedStreamKeepsNewRegistration(t *testing.T) {
	reg := progress.NewMemoryRegistry()
	srv := statusServer(t, reg, time.Minute)

	ctx1, cancel1 := context.WithCancel(context.Background())
	_, r1 := openStream(t, ctx1, srv.URL+"/status/"+testJobID)
	readFrame(t, r1)
	require.Eventually(t, func() bool { return reg.HasSubscriber(testJobID) }, 2*time.Second, 5*time.Millisecond)

	_, r2 := openStream(t, context.Background(), srv.URL+"/status/"+testJobID)
	readFrame(t, r2)
	time.Sleep(50 * time.Millisecond)

	cancel1()
	time.Sleep(50 * time.Millisecond)

	require.True(t, reg.HasSubscriber(testJobID))
	require.True(t, reg.Emit(testJobID, progress.EventProgress, "Creating ZIP file...", nil))
	assert.Equal(t, "Creating ZIP file...", frameData(t, readFrame(t, r2))["message"])
}

func TestStreamSubscriber_DropsWhenFull(t *testing.T) {
	sub := newStreamSubscriber()
	for i := 0; i < streamBuffer; i++ {
		require.True(t, sub.Send(progress.Event{Type: progress.EventProgress}))
	}
	assert.False(t, sub.Send(progress.Event{Type: progress.EventProgress}))
}
